package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed static/*
var EmbeddedStaticFS embed.FS

//go:embed templates/*.html
var EmbeddedTemplatesFS embed.FS

// pageTemplates parses the embedded page templates. They ship with the
// binary, so a parse failure is a build defect and panics.
func pageTemplates() *template.Template {
	return template.Must(template.ParseFS(EmbeddedTemplatesFS, "templates/*.html"))
}

// staticHandler serves the embedded assets below /static/*filepath.
// The bare directory has no index and answers 404.
func staticHandler() gin.HandlerFunc {
	sub, err := fs.Sub(EmbeddedStaticFS, "static")
	if err != nil {
		panic("embedded static tree: " + err.Error())
	}
	assets := http.FS(sub)

	return func(c *gin.Context) {
		name := c.Param("filepath")
		if name == "" || name == "/" {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", "public, max-age=3600")
		c.FileFromFS(name, assets)
	}
}
