package receipt

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

const returnColor = "#d32f2f"

var htmlTemplate = htmltemplate.Must(htmltemplate.New("receipt.html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family:Arial,Helvetica,sans-serif;color:#222;">
<h2>{{.Company}}</h2>
<p>Hi {{.CustomerName}},</p>
<p>Thank you for your order. Order <strong>#{{.OrderID}}</strong> was delivered on {{.Date}}.</p>
<table cellpadding="6" cellspacing="0" style="border-collapse:collapse;width:100%;">
<thead>
<tr style="background:#f2f2f2;text-align:left;">
<th>Item</th><th style="text-align:right;">Qty</th><th style="text-align:right;">Unit price</th><th style="text-align:right;">Amount</th>
</tr>
</thead>
<tbody>
{{- range .Rows}}
<tr{{if .Return}} class="return" style="color:{{$.ReturnColor}};"{{end}}>
<td>{{.Title}}{{if .Return}} (return){{end}}</td><td style="text-align:right;">{{.Quantity}}</td><td style="text-align:right;">{{.UnitPrice}}</td><td style="text-align:right;">{{.Amount}}</td>
</tr>
{{- end}}
</tbody>
<tfoot>
<tr>
<td colspan="3" style="text-align:right;"><strong>Total</strong></td>
<td style="text-align:right;{{if .TotalNegative}}color:{{.ReturnColor}};{{end}}"><strong>{{.Total}}</strong></td>
</tr>
</tfoot>
</table>
{{- if .Signature}}
<div class="signature">
<p>Signed by: {{.Signature.SignedBy}}</p>
<img src="{{.Signature.ImageURL}}" alt="Signature of {{.Signature.SignedBy}}" style="max-width:320px;">
</div>
{{- end}}
<p>Thank You!<br>{{.Company}}</p>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("receipt.txt").Parse(`Hi {{.CustomerName}},

Thank you for your order with {{.Company}}. Please find the attached order #{{.OrderID}}, for your records.

Thank You!
{{.Company}}
`))
