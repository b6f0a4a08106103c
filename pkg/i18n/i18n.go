package i18n

import (
	"embed"
	"encoding/json"
	"path"

	"RescueDesk/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// 支持的语言
var Supported = []string{"en", "zh"}

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang string
}

// NewI18nSupport 初始化国际化支持，语言文件随二进制内嵌
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		buf, err := locales.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, err
		}
	}
	return &I18nSupport{bundle: bundle, defaultLang: tag.String()}, nil
}

// DefaultLang 默认语言
func (i *I18nSupport) DefaultLang() string {
	return i.defaultLang
}

// T 获取翻译文本，未命中时返回键名
func (i *I18nSupport) T(languageTag, key string, templateData map[string]any) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.defaultLang)
	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		logger.Warn("translate failed", zap.String("key", key), zap.String("lang", languageTag), zap.Error(err))
		return key
	}
	return translation
}

// TWithDefaultLang 使用默认语言获取翻译文本
func (i *I18nSupport) TWithDefaultLang(key string, templateData map[string]any) string {
	return i.T(i.defaultLang, key, templateData)
}

// Match 从 Accept-Language 之类的候选中挑选支持的语言
func Match(candidates ...string) string {
	tags := make([]language.Tag, 0, len(Supported))
	for _, s := range Supported {
		tags = append(tags, language.Make(s))
	}
	matcher := language.NewMatcher(tags)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(c)
		if err != nil || len(parsed) == 0 {
			continue
		}
		_, idx, conf := matcher.Match(parsed...)
		if conf != language.No {
			return Supported[idx]
		}
	}
	return ""
}
