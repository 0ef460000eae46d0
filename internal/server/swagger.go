package server

import (
	"net/url"

	"cardshop/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupSwagger serves the API docs. When the service sits behind a public
// base URL, "Try it out" calls are aimed there instead of localhost.
func SetupSwagger(r *gin.Engine, publicBaseURL string) {
	if host, scheme, ok := swaggerTarget(publicBaseURL); ok {
		docs.SwaggerInfo.Host = host
		docs.SwaggerInfo.Schemes = []string{scheme}
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.PersistAuthorization(true)))
}

func swaggerTarget(publicBaseURL string) (string, string, bool) {
	if publicBaseURL == "" {
		return "", "", false
	}
	u, err := url.Parse(publicBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}
	return u.Host, u.Scheme, true
}
