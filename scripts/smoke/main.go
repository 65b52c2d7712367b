// Command smoke drives a running booking service through search, booking
// and a test-card payment. The service must run with ALLOW_FAKE_PAYMENTS.
//
// Usage:
//
//	go run ./scripts/smoke --base=http://localhost:8080 --postcode="SW1A 1AA"
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/wolfman30/homevisit-booking/internal/booking"
	"github.com/wolfman30/homevisit-booking/internal/payments"
)

type page struct {
	url  *url.URL
	root *html.Node
}

type runner struct {
	base   string
	client *http.Client
}

func main() {
	base := flag.String("base", "http://localhost:8080", "service base URL")
	first := flag.String("first", "Smoke", "first name")
	surname := flag.String("surname", "Test", "surname")
	phone := flag.String("phone", "07700900123", "phone")
	email := flag.String("email", "smoke@example.com", "email")
	address := flag.String("address", "1 Test Street", "address")
	postcode := flag.String("postcode", "SW1A 1AA", "postcode")
	card := flag.String("card", payments.FakeCardSucceeds, "test payment method")
	flag.Parse()

	jar, _ := cookiejar.New(nil)
	r := &runner{
		base:   strings.TrimRight(*base, "/"),
		client: &http.Client{Jar: jar, Timeout: 60 * time.Second},
	}

	step("health", r.health())

	form := url.Values{}
	form.Set(booking.FieldFirstName, *first)
	form.Set(booking.FieldSurname, *surname)
	form.Set(booking.FieldPhone, *phone)
	form.Set(booking.FieldEmail, *email)
	form.Set(booking.FieldAddress, *address)
	form.Set(booking.FieldPostcode, *postcode)
	p, err := r.post("/booking/availability", form)
	step("search availability", err)
	if msg := textOf(p.root, "message"); msg != "" {
		fail("search availability", msg)
	}

	date := firstOption(p.root, "date")
	if date == "" {
		fail("pick date", "no dates offered")
	}
	p, err = r.post("/booking/date", url.Values{"date": {date}})
	step("pick date "+date, err)

	window := firstOption(p.root, "time")
	if window == "" {
		fail("pick time", "no windows offered")
	}
	_, err = r.post("/booking/time", url.Values{"time": {window}})
	step("pick time "+window, err)

	p, err = r.post("/booking/submit", url.Values{})
	step("submit booking", err)
	reference := p.url.Query().Get("reference")
	if p.url.Path != "/payment" || reference == "" {
		fail("submit booking", "expected redirect to payment, got "+p.url.String()+" "+textOf(p.root, "message"))
	}
	fmt.Printf("booking reference: %s\n", reference)

	for i := 0; i < 10 && findByID(p.root, "payment-form") == nil && textOf(p.root, "message") == ""; i++ {
		time.Sleep(time.Second)
		p, err = r.get("/payment?reference=" + url.QueryEscape(reference))
		step("load payment", err)
	}
	if findByID(p.root, "payment-form") == nil {
		fail("load payment", textOf(p.root, "message"))
	}
	fmt.Printf("price: %s\n", textOf(p.root, "price"))

	p, err = r.post("/payment/confirm", url.Values{
		"reference":      {reference},
		"payment_method": {*card},
	})
	step("confirm payment", err)
	if findByID(p.root, "thanks") == nil {
		fail("confirm payment", textOf(p.root, "message"))
	}
	fmt.Println("PASS: booking paid")
}

func (r *runner) health() error {
	resp, err := r.client.Get(r.base + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (r *runner) get(path string) (*page, error) {
	resp, err := r.client.Get(r.base + path)
	if err != nil {
		return nil, err
	}
	return readPage(resp)
}

func (r *runner) post(path string, form url.Values) (*page, error) {
	resp, err := r.client.PostForm(r.base+path, form)
	if err != nil {
		return nil, err
	}
	return readPage(resp)
}

func readPage(resp *http.Response) (*page, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &page{url: resp.Request.URL, root: root}, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func firstOption(root *html.Node, selectID string) string {
	sel := findByID(root, selectID)
	if sel == nil {
		return ""
	}
	for c := sel.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "option" {
			if v := attr(c, "value"); v != "" {
				return v
			}
		}
	}
	return ""
}

func textOf(root *html.Node, id string) string {
	n := findByID(root, id)
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func step(name string, err error) {
	if err != nil {
		fail(name, err.Error())
	}
	fmt.Printf("ok   %s\n", name)
}

func fail(name, detail string) {
	fmt.Printf("FAIL %s: %s\n", name, detail)
	os.Exit(1)
}
