package http

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// OpenAPIPath is where the API document is served.
const OpenAPIPath = "/.well-known/openapi.json"

//go:embed openapi.json
var openAPIDoc []byte

type apiDoc struct{}

func (apiDoc) ReadDoc() string { return string(openAPIDoc) }

func init() {
	swag.Register(swag.Name, apiDoc{})
}

// OpenAPI serves the billing API document.
func OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(openAPIDoc)
}

func mountOpenAPI(r chi.Router) {
	r.Get(OpenAPIPath, OpenAPI)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(OpenAPIPath)))
}
