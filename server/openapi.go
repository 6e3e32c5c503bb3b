package server

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
)

// OpenAPI describes the API as a Swagger 2.0 document. It is generated offline by the
// openapi command; the server itself only serves /predict.
func OpenAPI(version string) *spec.Swagger {
	s := &RestServer{WebService: new(restful.WebService)}
	s.CreateWebService()
	return restfulspec.BuildSwagger(restfulspec.Config{
		WebServices: []*restful.WebService{s.WebService},
		PostBuildSwaggerObjectHandler: func(swagger *spec.Swagger) {
			swagger.Info = &spec.Info{
				InfoProps: spec.InfoProps{
					Title:       "heartpredict",
					Description: "Heart disease prediction from a patient record.",
					Version:     version,
				},
			}
			swagger.Tags = []spec.Tag{{TagProps: spec.TagProps{
				Name:        "predict",
				Description: "Classification with the serving model",
			}}}
		},
	})
}
