package swagger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/smartystreets/goconvey/convey"
	"go.yaml.in/yaml/v3"
)

func TestRegister(t *testing.T) {
	convey.Convey("Given a router with the API reference", t, func() {
		r := chi.NewRouter()
		Register(r)

		convey.Convey("When the OpenAPI document is requested", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))

			convey.Convey("Then it is served as YAML", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.Bytes(), convey.ShouldResemble, OpenAPI)
			})
		})

		convey.Convey("When the docs page is requested", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs", http.NoBody))

			convey.Convey("Then ReDoc loads the document", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/openapi.yaml")
			})
		})

		convey.Convey("When a nil router is given", func() {
			convey.So(func() { Register(nil) }, convey.ShouldPanic)
		})
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded OpenAPI document", t, func() {
		var doc struct {
			OpenAPI string                    `yaml:"openapi"`
			Paths   map[string]map[string]any `yaml:"paths"`
		}
		convey.So(yaml.Unmarshal(OpenAPI, &doc), convey.ShouldBeNil)

		convey.Convey("Then it documents every route", func() {
			convey.So(doc.OpenAPI, convey.ShouldStartWith, "3.")
			for path, method := range map[string]string{
				"/healthz":                     "get",
				"/stats":                       "get",
				"/lakes":                       "get",
				"/lakes/{lakeID}":              "get",
				"/lakes/{lakeID}/point":        "get",
				"/timelines":                   "post",
				"/timelines/{id}":              "delete",
				"/timelines/{id}/gestures":     "post",
				"/timelines/{id}/jump":         "post",
				"/timelines/{id}/resize":       "post",
				"/timelines/{id}/allowed-days": "get",
				"/timelines/{id}/tiles":        "get",
				"/timelines/{id}/stream":       "get",
			} {
				convey.So(doc.Paths, convey.ShouldContainKey, path)
				convey.So(doc.Paths[path], convey.ShouldContainKey, method)
			}
		})
	})
}
