package middleware

import (
	"encoding/json"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 上下文键
const (
	OperatorKey    = "operator"
	AuditActionKey = "audit_action"
	AuditDetailKey = "audit_detail"
)

// OperatorID 调度员标识：上下文 > X-Operator-ID > operator 查询参数
func OperatorID(c *gin.Context) string {
	if v, ok := c.Get(OperatorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if id := c.GetHeader("X-Operator-ID"); id != "" {
		return id
	}
	return c.Query("operator")
}

// SetAudit 处理函数补充审计动作与详情
func SetAudit(c *gin.Context, action string, detail any) {
	c.Set(AuditActionKey, action)
	if detail != nil {
		c.Set(AuditDetailKey, detail)
	}
}

// OperationLogMiddleware 写路径完成后记录一条 OperatorAction；落库失败只记日志
func OperationLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if db == nil {
			return
		}

		ua := user_agent.New(c.GetHeader("User-Agent"))
		browser, version := ua.Browser()
		action := c.GetString(AuditActionKey)
		if action == "" {
			action = c.Request.Method + " " + c.FullPath()
		}
		rec := models.OperatorAction{
			AlertID:    c.Param("id"),
			Operator:   OperatorID(c),
			Action:     action,
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			IP:         c.ClientIP(),
			Browser:    fmtBrowser(browser, version),
			OS:         ua.OS(),
			ActionTime: time.Now(),
		}
		if d, ok := c.Get(AuditDetailKey); ok {
			if raw, err := json.Marshal(d); err == nil {
				rec.Detail = datatypes.JSON(raw)
			}
		}
		if err := db.WithContext(c.Request.Context()).Create(&rec).Error; err != nil {
			logger.Warn("operator action not recorded", zap.String("path", rec.Path), zap.Error(err))
		}
	}
}

func fmtBrowser(name, version string) string {
	if version == "" {
		return name
	}
	return name + " " + version
}
