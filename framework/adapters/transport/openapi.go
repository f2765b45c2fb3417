package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/logger"
)

// ValidationOptions опции для валидации OpenAPI
type ValidationOptions struct {
	ValidateRequest  bool
	ValidateResponse bool
	MultiError       bool
	// PathPrefix префикс маршрутов API, который не входит в пути контракта
	PathPrefix string
	// DocsPath префикс Swagger UI и контракта (пусто = не публиковать)
	DocsPath string
}

// DefaultValidationOptions возвращает опции валидации по умолчанию
func DefaultValidationOptions() *ValidationOptions {
	return &ValidationOptions{
		ValidateRequest: true,
		MultiError:      true,
		DocsPath:        "/swagger",
	}
}

// ValidationError ошибка валидации отдельного поля
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// OpenAPIValidator проверяет запросы по OpenAPI контракту и публикует его
type OpenAPIValidator struct {
	doc     *openapi3.T
	raw     []byte
	router  routers.Router
	options *ValidationOptions
}

// NewOpenAPIValidator создает валидатор из содержимого контракта (YAML или JSON)
func NewOpenAPIValidator(document []byte, options *ValidationOptions) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "failed to load OpenAPI document")
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid OpenAPI document")
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "failed to create OpenAPI router")
	}

	if options == nil {
		options = DefaultValidationOptions()
	}

	return &OpenAPIValidator{doc: doc, raw: document, router: router, options: options}, nil
}

// Document возвращает загруженный контракт
func (v *OpenAPIValidator) Document() *openapi3.T {
	return v.doc
}

// responseRecorder копирует тело ответа для проверки
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Middleware возвращает Gin middleware валидации.
// Маршруты, не описанные в контракте, пропускаются без проверки.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, params, err := v.findRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: params,
			Route:      route,
			Options:    &openapi3filter.Options{MultiError: v.options.MultiError},
		}

		if v.options.ValidateRequest {
			if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
				details := v.formatValidationError(err)
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
					Code:    core.ErrValidation,
					Message: details[0].Message,
					Details: details,
				})
				return
			}
		}

		if !v.options.ValidateResponse {
			c.Next()
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if err := openapi3filter.ValidateResponse(c.Request.Context(), &openapi3filter.ResponseValidationInput{
			RequestValidationInput: input,
			Status:                 rec.Status(),
			Header:                 rec.Header(),
			Body:                   io.NopCloser(bytes.NewReader(rec.body.Bytes())),
			Options:                &openapi3filter.Options{IncludeResponseStatus: true},
		}); err != nil {
			logger.From(c.Request.Context()).Warn("response does not match OpenAPI contract", zap.Error(err))
		}
	}
}

// findRoute ищет операцию контракта по пути запроса без PathPrefix
func (v *OpenAPIValidator) findRoute(req *http.Request) (*routers.Route, map[string]string, error) {
	prefix := strings.TrimSuffix(v.options.PathPrefix, "/")
	if prefix == "" {
		return v.router.FindRoute(req)
	}
	path, ok := strings.CutPrefix(req.URL.Path, prefix)
	if !ok || (path != "" && path[0] != '/') {
		return nil, nil, routers.ErrPathNotFound
	}
	if path == "" {
		path = "/"
	}
	lookup := req.Clone(req.Context())
	lookup.URL.Path = path
	lookup.URL.RawPath = ""
	return v.router.FindRoute(lookup)
}

// formatValidationError разворачивает ошибки kin-openapi в список полей
func (v *OpenAPIValidator) formatValidationError(err error) []ValidationError {
	var result []ValidationError
	collectValidationErrors(err, "", &result)
	if len(result) == 0 {
		result = append(result, ValidationError{Message: err.Error()})
	}
	if !v.options.MultiError {
		return result[:1]
	}
	return result
}

// collectValidationErrors field задает имя параметра для вложенных ошибок схемы
func collectValidationErrors(err error, field string, out *[]ValidationError) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, nested := range e {
			collectValidationErrors(nested, field, out)
		}
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			field = e.Parameter.Name
		}
		if e.Err == nil {
			*out = append(*out, ValidationError{Field: field, Message: e.Error()})
			return
		}
		collectValidationErrors(e.Err, field, out)
	case *openapi3.SchemaError:
		if pointer := e.JSONPointer(); len(pointer) > 0 {
			field = strings.Join(pointer, ".")
		}
		*out = append(*out, ValidationError{Field: field, Message: e.Reason})
	default:
		var schemaErr *openapi3.SchemaError
		if errors.As(err, &schemaErr) {
			collectValidationErrors(schemaErr, field, out)
			return
		}
		*out = append(*out, ValidationError{Field: field, Message: err.Error()})
	}
}

// RegisterDocs публикует контракт и Swagger UI на DocsPath
func (v *OpenAPIValidator) RegisterDocs(router gin.IRouter) {
	if v.options.DocsPath == "" {
		return
	}
	path := strings.TrimSuffix(v.options.DocsPath, "/")
	docs := router.Group(path)
	docs.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/x-yaml", v.raw)
	})
	docs.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIHTML(path+"/openapi.yaml", v.doc.Info.Title)))
	})
}

func swaggerUIHTML(specURL, title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "%s",
        dom_id: '#swagger-ui',
        deepLinking: true,
        displayRequestDuration: true,
        presets: [SwaggerUIBundle.presets.apis]
      });
    };
  </script>
</body>
</html>`, title, specURL)
}
