package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wplace/painter/api/http/controller/home"
	"wplace/painter/log"
)

func Routers(e *gin.RouterGroup) {

	homeGroup := e.Group("/")
	homeGroup.GET("public/status", home.Status)
	homeGroup.GET("public/diff/:identifier", home.Diff)
	homeGroup.GET("public/preview/:identifier", home.Preview)
}

// Serve 启动只读状态 API，listen 为空则不启动
func Serve(listen string) {
	if listen == "" {
		return
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), cors.Default())
	Routers(engine.Group("/"))

	go func() {
		log.Infof("status api listening on %s", listen)
		if err := engine.Run(listen); err != nil {
			log.Errorf("status api stopped: %v", err)
		}
	}()
}
