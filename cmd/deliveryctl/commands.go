package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vladislavdragonenkov/delivery/internal/app"
	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/orders"
)

var errUsage = errors.New("unknown command")

// cli выполняет команды над уже собранными зависимостями.
type cli struct {
	deps *app.Dependencies
	out  io.Writer
	now  func() time.Time
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	group, cmd, rest := args[0], args[1], args[2:]

	switch group + " " + cmd {
	case "customers add":
		return c.addCustomer(ctx, rest)
	case "customers list":
		return c.listCustomers(ctx)
	case "orders list":
		return c.listOrders(ctx, rest)
	case "orders list-customer":
		return c.listCustomerOrders(ctx, rest)
	case "orders create":
		return c.createOrder(ctx, rest)
	case "orders update":
		return c.updateOrder(ctx, rest)
	case "orders remove":
		return c.removeOrder(ctx, rest)
	case "receipts send":
		return c.sendReceipt(ctx, rest)
	default:
		return fmt.Errorf("%w: %s %s", errUsage, group, cmd)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) addCustomer(ctx context.Context, args []string) error {
	fs := newFlagSet("customers add")
	id := fs.String("id", "", "customer id")
	name := fs.String("name", "", "customer name")
	email := fs.String("email", "", "customer email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return domain.ErrCustomerIDRequired
	}

	now := time.Now().UTC()
	if c.now != nil {
		now = c.now()
	}
	customer := domain.Customer{ID: *id, Name: *name, Email: *email, CreatedAt: now}
	if err := c.deps.Repo.SaveCustomer(ctx, customer); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "customer %s saved\n", customer.ID)
	return err
}

func (c *cli) listCustomers(ctx context.Context) error {
	customers, err := c.deps.Repo.ListCustomers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
	for _, customer := range customers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", customer.ID, customer.Name, customer.Email)
	}
	return tw.Flush()
}

func (c *cli) listOrders(ctx context.Context, args []string) error {
	fs := newFlagSet("orders list")
	all := fs.Bool("all", false, "include closed orders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := c.deps.Aggregator.ListOrders(ctx, !*all)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORDER\tCUSTOMER\tCREATED\tOPEN\tTOTAL")
	for _, o := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			o.ID, o.CustomerName, o.CreatedAt.Format(time.RFC3339), o.IsOpen, o.TotalPrice.StringFixed(2))
	}
	return tw.Flush()
}

func (c *cli) listCustomerOrders(ctx context.Context, args []string) error {
	fs := newFlagSet("orders list-customer")
	customerID := fs.String("customer", "", "customer id")
	all := fs.Bool("all", false, "include closed orders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := c.deps.Aggregator.ListOrdersForCustomer(ctx, *customerID, !*all)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORDER\tCREATED\tOPEN\tITEMS\tTOTAL")
	for _, o := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n",
			o.ID, o.CreatedAt.Format(time.RFC3339), o.IsOpen, len(o.LineItems), o.TotalPrice.StringFixed(2))
	}
	return tw.Flush()
}

func (c *cli) createOrder(ctx context.Context, args []string) error {
	fs := newFlagSet("orders create")
	customerID := fs.String("customer", "", "customer id")
	var items itemFlags
	fs.Var(&items, "item", "line item title:qty:price (repeatable)")
	open := fs.Bool("open", false, "leave the order open")
	signatureFile := fs.String("signature", "", "path to the signature image")
	signee := fs.String("signee", "", "who signed for the delivery")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := orders.CreateOrderRequest{
		CustomerID: *customerID,
		LineItems:  items,
		IsOpen:     *open,
		Signee:     *signee,
	}
	if *signatureFile != "" {
		raw, err := os.ReadFile(*signatureFile)
		if err != nil {
			return fmt.Errorf("read signature: %w", err)
		}
		req.SignatureBase64 = base64.StdEncoding.EncodeToString(raw)
	}

	id, err := c.deps.Workflow.CreateOrder(ctx, req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "order %s created\n", id)
	return err
}

func (c *cli) updateOrder(ctx context.Context, args []string) error {
	fs := newFlagSet("orders update")
	customerID := fs.String("customer", "", "customer id")
	orderID := fs.String("order", "", "order id")
	open := fs.String("open", "", "true|false, empty keeps the current state")
	total := fs.String("total", "", "expected total price")
	signee := fs.String("signee", "", "who signed for the delivery")
	var items itemFlags
	fs.Var(&items, "item", "replacement line item title:qty:price (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch orders.OrderPatch
	if *open != "" {
		v, err := strconv.ParseBool(*open)
		if err != nil {
			return fmt.Errorf("%w: -open %q", domain.ErrValidation, *open)
		}
		patch.IsOpen = &v
	}
	if *total != "" {
		patch.TotalPrice = total
	}
	if len(items) > 0 {
		patch.LineItems = items
	}
	if *signee != "" {
		patch.Signature = &domain.SignatureRecord{SignedBy: *signee}
	}

	if err := c.deps.Workflow.UpdateOrder(ctx, *customerID, *orderID, patch); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "order %s updated\n", *orderID)
	return err
}

func (c *cli) removeOrder(ctx context.Context, args []string) error {
	fs := newFlagSet("orders remove")
	customerID := fs.String("customer", "", "customer id")
	orderID := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := c.deps.Workflow.RemoveOrder(ctx, *customerID, *orderID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "order %s removed\n", *orderID)
	return err
}

func (c *cli) sendReceipt(ctx context.Context, args []string) error {
	fs := newFlagSet("receipts send")
	customerID := fs.String("customer", "", "customer id")
	orderID := fs.String("order", "", "order id, defaults to the latest order")
	locale := fs.String("locale", "", "receipt locale, e.g. en-NZ")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := c.deps.Workflow.SendReceipt(ctx, orders.SendReceiptRequest{
		CustomerID: *customerID,
		OrderID:    *orderID,
		Locale:     *locale,
	})
	if err != nil {
		if result.Queued {
			_, _ = fmt.Fprintf(c.out, "receipt for order %s queued for retry\n", result.OrderID)
		}
		return err
	}
	_, err = fmt.Fprintf(c.out, "receipt sent: %s\n", result.Subject)
	return err
}

// itemFlags разбирает повторяющийся флаг -item вида title:qty:price.
type itemFlags []domain.LineItemInput

func (f *itemFlags) String() string {
	parts := make([]string, 0, len(*f))
	for _, item := range *f {
		parts = append(parts, item.Title+":"+item.Quantity+":"+item.UnitPrice)
	}
	return strings.Join(parts, ",")
}

func (f *itemFlags) Set(value string) error {
	// Название может содержать двоеточие, поэтому числа берутся с конца.
	price := strings.LastIndex(value, ":")
	if price < 0 {
		return fmt.Errorf("item %q: want title:qty:price", value)
	}
	qty := strings.LastIndex(value[:price], ":")
	if qty < 0 {
		return fmt.Errorf("item %q: want title:qty:price", value)
	}
	*f = append(*f, domain.LineItemInput{
		Title:     value[:qty],
		Quantity:  value[qty+1 : price],
		UnitPrice: value[price+1:],
	})
	return nil
}
