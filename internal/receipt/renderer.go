package receipt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// DefaultCompanyName подписывает письма, если имя не задано.
const DefaultCompanyName = "Mao Produce"

// Receipt — готовое к отправке письмо с подтверждением доставки.
type Receipt struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Subject возвращает тему письма для заказа.
func Subject(orderID string) string {
	return "Delivery Confirmation for Order: " + orderID
}

// Option настраивает Renderer.
type Option func(*rendererOptions)

type rendererOptions struct {
	company    string
	defaultTag string
	locales    []Locale
}

// WithCompanyName задаёт название компании в тексте письма.
func WithCompanyName(name string) Option {
	return func(o *rendererOptions) {
		if strings.TrimSpace(name) != "" {
			o.company = name
		}
	}
}

// WithDefaultLocale задаёт локаль, используемую для неизвестных тегов.
func WithDefaultLocale(tag string) Option {
	return func(o *rendererOptions) {
		if strings.TrimSpace(tag) != "" {
			o.defaultTag = tag
		}
	}
}

// WithLocale добавляет локаль или заменяет встроенную с тем же тегом.
func WithLocale(locale Locale) Option {
	return func(o *rendererOptions) {
		for i := range o.locales {
			if strings.EqualFold(o.locales[i].Tag, locale.Tag) {
				o.locales[i] = locale
				return
			}
		}
		o.locales = append(o.locales, locale)
	}
}

// Renderer строит квитанции. Render не имеет побочных эффектов и детерминирован.
type Renderer struct {
	company  string
	registry localeRegistry
}

// NewRenderer создаёт Renderer со встроенным набором локалей.
func NewRenderer(opts ...Option) *Renderer {
	o := rendererOptions{
		company:    DefaultCompanyName,
		defaultTag: DefaultLocaleTag,
		locales:    BuiltinLocales(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Renderer{
		company:  o.company,
		registry: newLocaleRegistry(o.locales, o.defaultTag),
	}
}

// ResolveLocale возвращает локаль, которая будет использована для тега.
func (r *Renderer) ResolveLocale(tag string) Locale {
	return r.registry.resolve(tag)
}

type rowView struct {
	Title     string
	Quantity  string
	UnitPrice string
	Amount    string
	Return    bool
}

type signatureView struct {
	SignedBy string
	ImageURL string
}

type receiptView struct {
	Subject       string
	Company       string
	CustomerName  string
	OrderID       string
	Date          string
	Rows          []rowView
	Total         string
	TotalNegative bool
	ReturnColor   string
	Signature     *signatureView
}

// Render строит тему, HTML и текст письма для заказа.
// Сумма заказа должна совпадать с суммой позиций, иначе возвращается ErrTotalMismatch.
func (r *Renderer) Render(order domain.Order, customer domain.Customer, localeTag string) (Receipt, error) {
	if err := order.ValidateTotal(); err != nil {
		return Receipt{}, err
	}

	locale := r.registry.resolve(localeTag)
	view := receiptView{
		Subject:       Subject(order.ID),
		Company:       r.company,
		CustomerName:  customer.Name,
		OrderID:       order.ID,
		Date:          order.CreatedAt.Format(locale.DateLayout),
		Rows:          buildRows(order.LineItems, locale),
		Total:         locale.FormatMoney(order.TotalPrice),
		TotalNegative: order.TotalPrice.IsNegative(),
		ReturnColor:   returnColor,
	}
	if order.Signature.HasImage() {
		view.Signature = &signatureView{
			SignedBy: order.Signature.SignedBy,
			ImageURL: order.Signature.ImageURL,
		}
	}

	var htmlBody, textBody bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBody, view); err != nil {
		return Receipt{}, fmt.Errorf("%w: html template: %v", domain.ErrRender, err)
	}
	if err := textTemplate.Execute(&textBody, view); err != nil {
		return Receipt{}, fmt.Errorf("%w: text template: %v", domain.ErrRender, err)
	}

	return Receipt{
		Subject:  view.Subject,
		HTMLBody: htmlBody.String(),
		TextBody: textBody.String(),
	}, nil
}

// buildRows выводит обычные позиции, затем возвраты, сохраняя исходный порядок внутри групп.
func buildRows(items []domain.LineItem, locale Locale) []rowView {
	rows := make([]rowView, 0, len(items))
	returns := make([]rowView, 0)
	for _, item := range items {
		row := rowView{
			Title:     item.Title,
			Quantity:  locale.FormatQuantity(item.Quantity),
			UnitPrice: locale.FormatMoney(item.UnitPrice),
			Amount:    locale.FormatMoney(item.Subtotal()),
			Return:    item.IsReturn(),
		}
		if row.Return {
			returns = append(returns, row)
			continue
		}
		rows = append(rows, row)
	}
	return append(rows, returns...)
}
