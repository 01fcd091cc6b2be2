package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// BlobPrefix is the path media references start with; blobs are served under it.
	BlobPrefix string
}

// NewRouter mounts the administrator REST API, blob serving and the client
// websocket on one gin engine.
func NewRouter(admin *AdminHandler, ws *WSHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/ws", ws.Serve)
	if opts.BlobPrefix != "" {
		router.GET(opts.BlobPrefix+"/*name", admin.ServeBlob(opts.BlobPrefix))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/exams", admin.ListExams)
		api.POST("/exams", admin.CreateExam)
		api.POST("/exams/import", admin.ImportExam)
		api.GET("/exams/:id", admin.GetExam)
		api.DELETE("/exams/:id", admin.DeleteExam)
		api.GET("/exams/:id/export", admin.ExportExam)
		api.GET("/exams/:id/submissions", admin.ListSubmissions)
		api.DELETE("/submissions", admin.DeleteSubmissions)

		session := api.Group("/session")
		session.GET("", admin.GetSession)
		session.POST("/select", admin.SelectExam)
		session.POST("/assign", admin.AssignExam)
		session.POST("/start", admin.StartExam)
		session.POST("/end", admin.EndExam)
		session.POST("/clear", admin.ClearAll)
	}
	return router
}
