package persistence

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Operator оператор для фильтрации
type Operator string

const (
	Eq        Operator = "="
	NotEq     Operator = "!="
	Gt        Operator = ">"
	Gte       Operator = ">="
	Lt        Operator = "<"
	Lte       Operator = "<="
	In        Operator = "IN"
	NotIn     Operator = "NOT IN"
	Like      Operator = "LIKE"
	Between   Operator = "BETWEEN"
	IsNull    Operator = "IS NULL"
	IsNotNull Operator = "IS NOT NULL"
)

// Логические связки условий
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// IDField имя поля, которое хранилища сопоставляют с ключом документа
const IDField = "id"

// Kind категория значения операнда. По ней хранилища выбирают приведение типов.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// String возвращает имя категории
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "invalid"
	}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Condition условие предиката
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
	// Logical связка с предыдущим условием (AND или OR), для первого условия игнорируется
	Logical string
	// Negate оборачивает условие в NOT (...)
	Negate bool
}

// Predicate фильтр, вычисляемый хранилищем.
//
// Условия соединяются слева направо; AND связывает сильнее OR, как в SQL:
//
//	Where("status", Eq, "new").And().Where("total", Gt, 10).Or().Where("vip", Eq, true)
//
// означает (status = 'new' AND total > 10) OR vip = true.
type Predicate struct {
	conditions  []Condition
	nextLogical string
	negateNext  bool
}

// NewPredicate создает пустой предикат (соответствует всем сущностям)
func NewPredicate() *Predicate {
	return &Predicate{nextLogical: LogicalAnd}
}

// Where создает предикат с одним условием
func Where(field string, op Operator, value interface{}) *Predicate {
	return NewPredicate().Where(field, op, value)
}

// Where добавляет условие фильтрации
func (p *Predicate) Where(field string, op Operator, value interface{}) *Predicate {
	p.conditions = append(p.conditions, Condition{
		Field:    field,
		Operator: op,
		Value:    value,
		Logical:  p.nextLogical,
		Negate:   p.negateNext,
	})
	p.nextLogical = LogicalAnd
	p.negateNext = false
	return p
}

// And соединяет следующее условие через AND
func (p *Predicate) And() *Predicate {
	p.nextLogical = LogicalAnd
	return p
}

// Or соединяет следующее условие через OR
func (p *Predicate) Or() *Predicate {
	p.nextLogical = LogicalOr
	return p
}

// Not инвертирует следующее условие
func (p *Predicate) Not() *Predicate {
	p.negateNext = !p.negateNext
	return p
}

// IsEmpty проверяет, что предикат не содержит условий
func (p *Predicate) IsEmpty() bool {
	return p == nil || len(p.conditions) == 0
}

// Conditions возвращает копию условий
func (p *Predicate) Conditions() []Condition {
	if p == nil {
		return nil
	}
	out := make([]Condition, len(p.conditions))
	copy(out, p.conditions)
	return out
}

// Groups разбивает условия на OR-группы, внутри которых условия соединены AND
func (p *Predicate) Groups() [][]Condition {
	if p.IsEmpty() {
		return nil
	}
	var groups [][]Condition
	current := []Condition{}
	for i, cond := range p.conditions {
		if i > 0 && cond.Logical == LogicalOr {
			groups = append(groups, current)
			current = []Condition{}
		}
		current = append(current, cond)
	}
	return append(groups, current)
}

// String возвращает читаемое представление предиката (для логов)
func (p *Predicate) String() string {
	if p.IsEmpty() {
		return "<all>"
	}
	var b strings.Builder
	for i, cond := range p.conditions {
		if i > 0 {
			b.WriteString(" " + cond.Logical + " ")
		}
		if cond.Negate {
			b.WriteString("NOT ")
		}
		switch cond.Operator {
		case IsNull, IsNotNull:
			fmt.Fprintf(&b, "%s %s", cond.Field, cond.Operator)
		default:
			fmt.Fprintf(&b, "%s %s %v", cond.Field, cond.Operator, cond.Value)
		}
	}
	return b.String()
}

// Validate проверяет корректность предиката
func (p *Predicate) Validate() error {
	if p == nil {
		return nil
	}
	for _, cond := range p.conditions {
		if err := validateCondition(cond); err != nil {
			return err
		}
	}
	if p.negateNext {
		return NewValidationError("NOT must be followed by a condition")
	}
	return nil
}

func validateCondition(cond Condition) error {
	if !fieldPattern.MatchString(cond.Field) {
		return NewValidationError("invalid field name %q", cond.Field)
	}

	switch cond.Operator {
	case IsNull, IsNotNull:
		return nil
	case In, NotIn:
		values, err := Values(cond.Value)
		if err != nil {
			return NewValidationError("%s on %s requires a slice: %v", cond.Operator, cond.Field, err)
		}
		if len(values) == 0 {
			return NewValidationError("%s on %s requires at least one value", cond.Operator, cond.Field)
		}
		_, err = uniformKind(values)
		if err != nil {
			return NewValidationError("%s on %s: %v", cond.Operator, cond.Field, err)
		}
		return nil
	case Between:
		values, err := Values(cond.Value)
		if err != nil {
			return NewValidationError("BETWEEN on %s requires a slice: %v", cond.Field, err)
		}
		if len(values) != 2 {
			return NewValidationError("BETWEEN on %s requires exactly 2 values, got %d", cond.Field, len(values))
		}
		if _, err := uniformKind(values); err != nil {
			return NewValidationError("BETWEEN on %s: %v", cond.Field, err)
		}
		return nil
	case Like:
		if _, ok := cond.Value.(string); !ok {
			return NewValidationError("LIKE on %s requires a string pattern, got %T", cond.Field, cond.Value)
		}
		return nil
	case Eq, NotEq, Gt, Gte, Lt, Lte:
		if _, kind := Normalize(cond.Value); kind == KindInvalid {
			return NewValidationError("unsupported value %T for %s %s", cond.Value, cond.Field, cond.Operator)
		}
		return nil
	default:
		return NewValidationError("unknown operator %q", cond.Operator)
	}
}

func uniformKind(values []interface{}) (Kind, error) {
	kind := KindInvalid
	for _, v := range values {
		_, k := Normalize(v)
		if k == KindInvalid {
			return KindInvalid, fmt.Errorf("unsupported value %T", v)
		}
		if kind != KindInvalid && k != kind {
			return KindInvalid, fmt.Errorf("mixed value kinds %s and %s", kind, k)
		}
		kind = k
	}
	return kind, nil
}

// Normalize приводит операнд к одному из базовых представлений:
// string, float64, bool или time.Time (UTC).
func Normalize(value interface{}) (interface{}, Kind) {
	switch v := value.(type) {
	case nil:
		return nil, KindInvalid
	case string:
		return v, KindString
	case bool:
		return v, KindBool
	case time.Time:
		return v.UTC(), KindTime
	case *time.Time:
		if v == nil {
			return nil, KindInvalid
		}
		return v.UTC(), KindTime
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, KindInvalid
		}
		return f, KindNumber
	case fmt.Stringer:
		return v.String(), KindString
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), KindNumber
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), KindNumber
	case reflect.Float32, reflect.Float64:
		return rv.Float(), KindNumber
	case reflect.String:
		return rv.String(), KindString
	case reflect.Bool:
		return rv.Bool(), KindBool
	}
	return nil, KindInvalid
}

// Values безопасно конвертирует значение в []interface{}
// Поддерживает:
// - []interface{} - используется напрямую
// - reflect.Slice ([]string, []int, []time.Time и т.д.) - копирует элементы
// - другие типы - возвращает ошибку
func Values(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, fmt.Errorf("value cannot be nil")
	}

	if slice, ok := value.([]interface{}); ok {
		return slice, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("value must be a slice, got %T", value)
	}

	result := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		result[i] = rv.Index(i).Interface()
	}
	return result, nil
}

// NormalizedValues возвращает нормализованные элементы среза и их общую категорию
func NormalizedValues(value interface{}) ([]interface{}, Kind, error) {
	values, err := Values(value)
	if err != nil {
		return nil, KindInvalid, err
	}
	kind, err := uniformKind(values)
	if err != nil {
		return nil, KindInvalid, err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i], _ = Normalize(v)
	}
	return out, kind, nil
}

// LikeToRegexp переводит шаблон LIKE (% и _) в якорное регулярное выражение
func LikeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// MatchDocument вычисляет предикат на JSON документе.
// Используется хранилищами без собственного языка запросов (in-memory).
// Значения NULL ведут себя как в SQL: сравнение с отсутствующим полем не
// выполняется ни для условия, ни для его отрицания.
func (p *Predicate) MatchDocument(id string, data []byte) (bool, error) {
	if p.IsEmpty() {
		return true, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if _, ok := doc[IDField]; !ok {
		doc[IDField] = id
	}

	result := truthFalse
	for _, group := range p.Groups() {
		groupResult := truthTrue
		for _, cond := range group {
			groupResult = groupResult.and(evalCondition(cond, lookup(doc, cond.Field)))
		}
		result = result.or(groupResult)
	}
	return result == truthTrue, nil
}

// truth трехзначная логика SQL
type truth int

const (
	truthFalse truth = iota
	truthTrue
	truthUnknown
)

func (t truth) and(o truth) truth {
	if t == truthFalse || o == truthFalse {
		return truthFalse
	}
	if t == truthUnknown || o == truthUnknown {
		return truthUnknown
	}
	return truthTrue
}

func (t truth) or(o truth) truth {
	if t == truthTrue || o == truthTrue {
		return truthTrue
	}
	if t == truthUnknown || o == truthUnknown {
		return truthUnknown
	}
	return truthFalse
}

func (t truth) not() truth {
	switch t {
	case truthTrue:
		return truthFalse
	case truthFalse:
		return truthTrue
	}
	return truthUnknown
}

func fromBool(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

func lookup(doc map[string]interface{}, path string) interface{} {
	var current interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func evalCondition(cond Condition, actual interface{}) truth {
	var result truth
	switch cond.Operator {
	case IsNull:
		result = fromBool(actual == nil)
	case IsNotNull:
		result = fromBool(actual != nil)
	default:
		if actual == nil {
			return truthUnknown
		}
		result = evalComparison(cond, actual)
	}
	if cond.Negate {
		return result.not()
	}
	return result
}

func evalComparison(cond Condition, actual interface{}) truth {
	switch cond.Operator {
	case In, NotIn:
		values, kind, err := NormalizedValues(cond.Value)
		if err != nil {
			return truthUnknown
		}
		found := false
		for _, v := range values {
			c, ok := compare(actual, v, kind)
			if !ok {
				return truthUnknown
			}
			if c == 0 {
				found = true
				break
			}
		}
		if cond.Operator == NotIn {
			return fromBool(!found)
		}
		return fromBool(found)
	case Between:
		values, kind, err := NormalizedValues(cond.Value)
		if err != nil || len(values) != 2 {
			return truthUnknown
		}
		lo, ok1 := compare(actual, values[0], kind)
		hi, ok2 := compare(actual, values[1], kind)
		if !ok1 || !ok2 {
			return truthUnknown
		}
		return fromBool(lo >= 0 && hi <= 0)
	case Like:
		pattern, _ := cond.Value.(string)
		s, ok := actual.(string)
		if !ok {
			return truthUnknown
		}
		re, err := regexp.Compile("(?s)" + LikeToRegexp(pattern))
		if err != nil {
			return truthUnknown
		}
		return fromBool(re.MatchString(s))
	}

	expected, kind := Normalize(cond.Value)
	c, ok := compare(actual, expected, kind)
	if !ok {
		return truthUnknown
	}
	switch cond.Operator {
	case Eq:
		return fromBool(c == 0)
	case NotEq:
		return fromBool(c != 0)
	case Gt:
		return fromBool(c > 0)
	case Gte:
		return fromBool(c >= 0)
	case Lt:
		return fromBool(c < 0)
	case Lte:
		return fromBool(c <= 0)
	}
	return truthUnknown
}

// compare сравнивает значение документа с нормализованным операндом.
// ok=false если типы несовместимы.
func compare(actual, expected interface{}, kind Kind) (int, bool) {
	switch kind {
	case KindString:
		s, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, expected.(string)), true
	case KindNumber:
		f, ok := actual.(float64)
		if !ok {
			return 0, false
		}
		e := expected.(float64)
		switch {
		case f < e:
			return -1, true
		case f > e:
			return 1, true
		}
		return 0, true
	case KindBool:
		b, ok := actual.(bool)
		if !ok {
			return 0, false
		}
		e := expected.(bool)
		switch {
		case b == e:
			return 0, true
		case !b:
			return -1, true
		}
		return 1, true
	case KindTime:
		s, ok := actual.(string)
		if !ok {
			return 0, false
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return 0, false
		}
		return t.Compare(expected.(time.Time)), true
	}
	return 0, false
}
