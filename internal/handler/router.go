package handler

import (
	"labsandbox/internal/config"
	"labsandbox/internal/sandbox"
	"labsandbox/internal/session"
	"labsandbox/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, cfg *config.Config, sessions *session.Manager, boxes *sandbox.Manager) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(sessions.Middleware())

	// 创建处理器
	h := NewHandler(db, cfg, sessions, boxes)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 登录相关
		auth := api.Group("/auth")
		{
			auth.POST("/tester-login", h.TesterLogin)
			auth.GET("/magic/:token", h.ConsumeMagicLink)
			auth.GET("/me", h.Me)
			auth.POST("/logout", h.Logout)
		}

		// 银行沙盒（需登录）
		bank := api.Group("/bank", RequireAuth())
		{
			bank.GET("/accounts", h.ListAccounts)
			bank.POST("/accounts", h.CreateAccount)
			bank.PUT("/accounts/:id/status", h.UpdateAccountStatus)
			bank.DELETE("/accounts/:id", h.DeleteAccount)
			bank.POST("/transfer", h.Transfer)
			bank.GET("/transactions", h.ListTransactions)
			bank.GET("/transactions/export", h.ExportTransactions)
			bank.POST("/reset", h.ResetSandbox)
		}

		// 实验（目录公开，贷款实验需登录）
		labs := api.Group("/labs")
		{
			labs.GET("", h.ListLabs)
			labs.POST("/loan/apply", RequireAuth(), h.ApplyLoan)
			labs.GET("/loan/applications", RequireAuth(), h.ListLoanApplications)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/login", h.AdminLogin)

			protected := admin.Group("", RequireAdmin())
			{
				protected.POST("/invites", h.CreateInvite)
				protected.GET("/invites", h.ListInvites)
				protected.POST("/testers", h.CreateTester)
				protected.GET("/testers", h.ListTesters)
				protected.DELETE("/testers/:id", h.DeleteTester)
				protected.POST("/templates", h.CreateTemplate)
				protected.GET("/templates", h.ListTemplates)
				protected.GET("/users", h.ListUsers)
				protected.GET("/audits/export", h.ExportAudits)
				protected.GET("/debug", h.Debug)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 未注册路由统一走响应信封
	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	return r
}
