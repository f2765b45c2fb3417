package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/akriventsev/potter-repository/framework/persistence"
)

// BuildMongoFilter переводит предикат в BSON фильтр.
// NULL семантика повторяет SQL: отрицание сравнения не выбирает документы,
// где поле отсутствует или равно null.
func BuildMongoFilter(predicate *persistence.Predicate) (bson.M, error) {
	if err := predicate.Validate(); err != nil {
		return nil, err
	}
	if predicate.IsEmpty() {
		return bson.M{}, nil
	}

	var groups bson.A
	for _, group := range predicate.Groups() {
		var terms bson.A
		for _, cond := range group {
			terms = append(terms, buildMongoCondition(cond))
		}
		groups = append(groups, bson.M{"$and": terms})
	}

	if len(groups) == 1 {
		return groups[0].(bson.M), nil
	}
	return bson.M{"$or": groups}, nil
}

func mongoField(field string) string {
	if field == persistence.IDField {
		return "_id"
	}
	return field
}

func mongoValue(value interface{}) interface{} {
	normalized, _ := persistence.Normalize(value)
	if t, ok := normalized.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return normalized
}

func mongoValues(value interface{}) bson.A {
	values, _ := persistence.Values(value)
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = mongoValue(v)
	}
	return out
}

func buildMongoCondition(cond persistence.Condition) bson.M {
	field := mongoField(cond.Field)

	var expr bson.M
	switch cond.Operator {
	case persistence.IsNull:
		expr = bson.M{field: nil}
	case persistence.IsNotNull:
		expr = bson.M{field: bson.M{"$ne": nil}}
	case persistence.Eq:
		expr = bson.M{field: bson.M{"$eq": mongoValue(cond.Value)}}
	case persistence.NotEq:
		expr = bson.M{field: bson.M{"$nin": bson.A{mongoValue(cond.Value), nil}}}
	case persistence.Gt:
		expr = bson.M{field: bson.M{"$gt": mongoValue(cond.Value)}}
	case persistence.Gte:
		expr = bson.M{field: bson.M{"$gte": mongoValue(cond.Value)}}
	case persistence.Lt:
		expr = bson.M{field: bson.M{"$lt": mongoValue(cond.Value)}}
	case persistence.Lte:
		expr = bson.M{field: bson.M{"$lte": mongoValue(cond.Value)}}
	case persistence.In:
		expr = bson.M{field: bson.M{"$in": mongoValues(cond.Value)}}
	case persistence.NotIn:
		expr = bson.M{field: bson.M{"$nin": append(mongoValues(cond.Value), nil)}}
	case persistence.Between:
		values := mongoValues(cond.Value)
		expr = bson.M{field: bson.M{"$gte": values[0], "$lte": values[1]}}
	case persistence.Like:
		pattern, _ := cond.Value.(string)
		expr = bson.M{field: primitive.Regex{Pattern: persistence.LikeToRegexp(pattern), Options: "s"}}
	}

	if !cond.Negate {
		return expr
	}
	if cond.Operator == persistence.IsNull || cond.Operator == persistence.IsNotNull {
		return bson.M{"$nor": bson.A{expr}}
	}
	return bson.M{"$and": bson.A{
		bson.M{field: bson.M{"$ne": nil}},
		bson.M{"$nor": bson.A{expr}},
	}}
}
