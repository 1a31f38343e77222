package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

const domain = "default"

// Configure loads the catalog of lang from localesDir. Messages without a
// translation are returned as written.
func Configure(localesDir, lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	gotext.Configure(localesDir, lang, domain)
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

// Translate looks msgID up and formats it with vars when any are given.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
