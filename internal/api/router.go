// Package api is the read-only HTTP surface over the pipeline outputs:
// result bundles, the comparison, the balance summary, persisted episodes
// and training metrics.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iquitos-ems/internal/api/handlers"
	"iquitos-ems/internal/api/middleware"
)

// Deps are the sources the handlers read from.
type Deps struct {
	OutputDir      string
	SummaryPath    string
	Episodes       handlers.EpisodeStore
	Metrics        http.Handler
	AllowedOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.CORS(d.AllowedOrigins))
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.NoRoute(middleware.NotFound())

	results := handlers.NewResultsHandler(d.OutputDir)
	compare := handlers.NewCompareHandler(d.OutputDir)
	bal := handlers.NewBalanceHandler(d.SummaryPath)
	runs := handlers.NewRunsHandler(d.Episodes)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/results", results.ListResults)
		v1.GET("/results/:agent", results.GetResult)
		v1.GET("/compare", compare.Compare)
		v1.GET("/balance/summary", bal.Summary)
		v1.GET("/runs/:agent/episodes", runs.Episodes)
		v1.GET("/reward/presets", handlers.ListPresets)
	}
	return router
}
