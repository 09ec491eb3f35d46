package receipt

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocaleTag — локаль квитанций, если запрошенную не удалось сопоставить.
const DefaultLocaleTag = "en-NZ"

// Плейсхолдеры шаблонов денежной суммы.
const (
	symbolPlaceholder = "{s}"
	numberPlaceholder = "{n}"
)

// Locale описывает форматирование денежных сумм, количеств и дат.
type Locale struct {
	Tag              string
	CurrencySymbol   string
	DecimalSeparator string
	GroupSeparator   string
	// PositivePattern и NegativePattern содержат {s} (символ валюты) и {n} (абсолютная величина).
	PositivePattern string
	NegativePattern string
	DateLayout      string
}

var builtinLocales = []Locale{
	{Tag: "en-NZ", CurrencySymbol: "$", DecimalSeparator: ".", GroupSeparator: ",", PositivePattern: "{s}{n}", NegativePattern: "-{s}{n}", DateLayout: "02/01/2006"},
	{Tag: "en-AU", CurrencySymbol: "$", DecimalSeparator: ".", GroupSeparator: ",", PositivePattern: "{s}{n}", NegativePattern: "-{s}{n}", DateLayout: "02/01/2006"},
	{Tag: "en-US", CurrencySymbol: "$", DecimalSeparator: ".", GroupSeparator: ",", PositivePattern: "{s}{n}", NegativePattern: "-{s}{n}", DateLayout: "01/02/2006"},
	{Tag: "en-GB", CurrencySymbol: "£", DecimalSeparator: ".", GroupSeparator: ",", PositivePattern: "{s}{n}", NegativePattern: "-{s}{n}", DateLayout: "02/01/2006"},
	{Tag: "de-DE", CurrencySymbol: "€", DecimalSeparator: ",", GroupSeparator: ".", PositivePattern: "{n}\u00a0{s}", NegativePattern: "-{n}\u00a0{s}", DateLayout: "02.01.2006"},
	{Tag: "fr-FR", CurrencySymbol: "€", DecimalSeparator: ",", GroupSeparator: "\u00a0", PositivePattern: "{n}\u00a0{s}", NegativePattern: "-{n}\u00a0{s}", DateLayout: "02/01/2006"},
}

// BuiltinLocales возвращает копию встроенного набора локалей.
func BuiltinLocales() []Locale {
	out := make([]Locale, len(builtinLocales))
	copy(out, builtinLocales)
	return out
}

// localeRegistry сопоставляет произвольный BCP 47 тег с одной из зарегистрированных локалей.
type localeRegistry struct {
	locales []Locale
	matcher language.Matcher
}

// newLocaleRegistry строит реестр; локаль defaultTag ставится первой и используется как fallback.
func newLocaleRegistry(locales []Locale, defaultTag string) localeRegistry {
	ordered := make([]Locale, 0, len(locales))
	for _, l := range locales {
		if strings.EqualFold(l.Tag, defaultTag) {
			ordered = append([]Locale{l}, ordered...)
			continue
		}
		ordered = append(ordered, l)
	}

	tags := make([]language.Tag, 0, len(ordered))
	for _, l := range ordered {
		tags = append(tags, language.Make(l.Tag))
	}
	return localeRegistry{locales: ordered, matcher: language.NewMatcher(tags)}
}

// resolve возвращает локаль для тега; неизвестные и пустые теги дают локаль по умолчанию.
func (r localeRegistry) resolve(tag string) Locale {
	if len(r.locales) == 0 {
		return builtinLocales[0]
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return r.locales[0]
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return r.locales[0]
	}
	_, idx, confidence := r.matcher.Match(parsed)
	if confidence == language.No || idx < 0 || idx >= len(r.locales) {
		return r.locales[0]
	}
	return r.locales[idx]
}
