package config

const (
	LangEN = "en"
	LangES = "es"
)

// GetLocaleConfig normalises lang to a supported locale, defaulting to English.
func GetLocaleConfig(lang string) string {
	switch lang {
	case LangEN:
		return LangEN
	case LangES:
		return LangES
	default:
		return LangEN
	}
}
