package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	data := map[string]any{"Title": "Fall", "Position": "1,2"}
	assert.Equal(t, "New SOS alert", s.T("en", "alert.new.title", nil))
	assert.Equal(t, "新的求救警报", s.T("zh", "alert.new.title", nil))
	assert.Equal(t, "Fall at 1,2", s.TWithDefaultLang("alert.new.body", data))
	// 不支持的语言回退默认语言
	assert.Equal(t, "New SOS alert", s.T("fr", "alert.new.title", nil))
	assert.Equal(t, "missing.key", s.T("en", "missing.key", nil))
}

func TestMatch(t *testing.T) {
	assert.Equal(t, "zh", Match("zh-CN,zh;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", Match("", "en-US"))
	assert.Equal(t, "", Match())
}
