package middleware

import (
	"RescueDesk/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// LanguageMiddleware 按 ?lang= 或 Accept-Language 选择语言，写入上下文 lang
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18n.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		if lang == "" {
			lang = i18nSupport.DefaultLang()
		}
		c.Set("lang", lang)
		c.Next()
	}
}

// Lang 读取上下文语言
func Lang(c *gin.Context) string {
	if v, ok := c.Get("lang"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "en"
}
