package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/shopspring/decimal"
)

func sampleOpportunity() model.Opportunity {
	return model.Opportunity{
		ProductName: "Sony WH-1000XM5",
		AskingPrice: decimal.RequireFromString("249.99"),
		ResalePrice: decimal.RequireFromString("278.1"),
		Profit:      decimal.RequireFromString("28.11"),
		FeeAmount:   decimal.RequireFromString("30.9"),
		SourceURL:   "https://deals.example/feed",
		ProductURL:  "https://deals.example/1",
		EntryTitle:  "Sony WH-1000XM5 für 249,99€",
	}
}

type recordingNotifier struct {
	got []model.Opportunity
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, o model.Opportunity) error {
	r.got = append(r.got, o)
	return r.err
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("smtp down")}
	ok := &recordingNotifier{}
	m := NewMulti(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, nil, ok)

	if m.Len() != 2 {
		t.Fatalf("nil notifier should be skipped, got %d", m.Len())
	}
	err := m.Notify(context.Background(), sampleOpportunity())
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.got) != 1 {
		t.Fatal("second notifier should still receive the deal")
	}
}

func TestSubjectAndBody(t *testing.T) {
	o := sampleOpportunity()
	if got := Subject(o); got != "Profitable deal: +28.11 €" {
		t.Fatalf("subject = %q", got)
	}
	body := Body(o)
	for _, want := range []string{"Sony WH-1000XM5", "Asking price: 249.99 €", "Resale price (net): 278.10 €", "Link: https://deals.example/1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Bundle") {
		t.Error("single product should not mention a bundle")
	}
	o.BundleSize = 2
	if !strings.Contains(Body(o), "part of 2 products") {
		t.Error("bundle size should be mentioned")
	}
}

func TestMailerSendsMessage(t *testing.T) {
	m, err := NewMailer(MailConfig{Host: "smtp.example.com", Username: "bot@example.com", Password: "pw", To: []string{"me@example.com"}})
	if err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a == nil {
			t.Error("expected auth")
		}
		gotAddr, gotFrom, gotMsg = addr, from, msg
		return nil
	}
	if err := m.Notify(context.Background(), sampleOpportunity()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "bot@example.com" {
		t.Fatalf("addr=%q from=%q", gotAddr, gotFrom)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: =?utf-8?q?") || !strings.Contains(msg, "\r\n\r\nNew profitable deal found!") {
		t.Fatalf("unexpected message:\n%s", msg)
	}
}

func TestMailerWrapsSendError(t *testing.T) {
	m, _ := NewMailer(MailConfig{Host: "smtp.example.com", To: []string{"me@example.com"}})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	if err := m.Notify(context.Background(), sampleOpportunity()); err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestNewMailerRequiresRecipient(t *testing.T) {
	if _, err := NewMailer(MailConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func TestNATSPublisherPublishesJSON(t *testing.T) {
	fp := &fakePublisher{}
	p := &NATSPublisher{conn: fp, subject: DefaultSubject}
	if err := p.Notify(context.Background(), sampleOpportunity()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if fp.subject != DefaultSubject {
		t.Fatalf("subject = %q", fp.subject)
	}
	var msg DealMessage
	if err := json.Unmarshal(fp.data, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if msg.Opportunity.ProductName != "Sony WH-1000XM5" || !msg.Opportunity.Profit.Equal(decimal.RequireFromString("28.11")) {
		t.Fatalf("unexpected payload %+v", msg)
	}
	p.Close()
}
