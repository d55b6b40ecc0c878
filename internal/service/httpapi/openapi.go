package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
)

const bearerScheme = "bearerAuth"

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// openAPI отдаёт OpenAPI-описание, построенное по таблице маршрутов.
func (s *Server) openAPI(w http.ResponseWriter, _ *http.Request) {
	s.docOnce.Do(func() {
		var spec *openapi3.T
		spec, s.docErr = s.buildOpenAPI()
		if s.docErr == nil {
			s.doc, s.docErr = json.MarshalIndent(spec, "", "  ")
		}
	})
	if s.docErr != nil {
		s.logger.WithError(s.docErr).Error("failed to build openapi document")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.doc)
}

func (s *Server) buildOpenAPI() (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "Storefront API",
			Version: s.version,
		},
		Paths: &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerScheme: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
	}

	errorSchema, err := openapi3gen.NewSchemaRefForValue(errorResponse{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("error schema: %w", err)
	}

	for _, rt := range s.routes() {
		op, err := buildOperation(rt, spec.Components.Schemas, errorSchema)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", rt.method, rt.path, err)
		}

		item := spec.Paths.Find(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			spec.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, op)
	}
	return spec, nil
}

func buildOperation(rt route, schemas openapi3.Schemas, errorSchema *openapi3.SchemaRef) (*openapi3.Operation, error) {
	op := &openapi3.Operation{
		Summary:   rt.summary,
		Responses: &openapi3.Responses{},
	}

	for _, m := range pathParamPattern.FindAllStringSubmatch(rt.path, -1) {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema()),
		})
	}
	for _, name := range rt.query {
		schema := openapi3.NewStringSchema()
		if name == "limit" {
			schema = openapi3.NewIntegerSchema()
		}
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(name).WithSchema(schema),
		})
	}

	switch {
	case rt.request != nil:
		ref, err := openapi3gen.NewSchemaRefForValue(rt.request, schemas)
		if err != nil {
			return nil, err
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
		}
	case rt.path == "/api/admin/upload":
		form := openapi3.NewObjectSchema().
			WithProperty("file", openapi3.NewStringSchema().WithFormat("binary"))
		form.Required = []string{"file"}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithFormDataSchema(form),
		}
	}

	status := rt.status
	if status == 0 {
		status = http.StatusOK
	}
	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if rt.response != nil {
		ref, err := openapi3gen.NewSchemaRefForValue(rt.response, schemas)
		if err != nil {
			return nil, err
		}
		success = success.WithJSONSchemaRef(ref)
	}
	op.Responses.Set(fmt.Sprint(status), &openapi3.ResponseRef{Value: success})
	op.Responses.Set("default", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription("Error").WithJSONSchemaRef(errorSchema),
	})

	if rt.admin {
		op.Security = openapi3.NewSecurityRequirements().With(openapi3.NewSecurityRequirement().Authenticate(bearerScheme))
	}
	return op, nil
}
