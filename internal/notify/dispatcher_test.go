package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/xelth-com/dsrelay/internal/config"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/store"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func testEmailSender(sent *[]sentMail, fail error) *EmailSender {
	s := NewEmailSender(config.SMTPConfig{Host: "smtp.test", Port: "587", From: "ds@test"})
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{addr, from, to, string(msg)})
		return fail
	}
	return s
}

func TestDispatchEmail(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	var sent []sentMail

	d := NewDispatcher(st)
	d.Use(models.NotificationEmail, testEmailSender(&sent, nil))

	err := d.Register(ctx, models.NotificationChannel{
		Account:   "bob.eth",
		Type:      models.NotificationEmail,
		Recipient: "Bob <bob@example.com>",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := d.Dispatch(ctx, models.DeliveryInformation{To: "bob.eth", From: "alice.eth"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("Expected 1 mail, got %d", len(sent))
	}
	m := sent[0]
	if m.addr != "smtp.test:587" || m.from != "ds@test" || m.to[0] != "bob@example.com" {
		t.Errorf("unexpected envelope %+v", m)
	}
	if !strings.Contains(m.msg, "Subject: New message from alice.eth") {
		t.Errorf("subject missing in %q", m.msg)
	}

	if err := d.Dispatch(ctx, models.DeliveryInformation{To: "carol.eth", From: "alice.eth"}); err != nil {
		t.Errorf("account without channels must not fail: %v", err)
	}
}

func TestDispatchReportsFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	var sent []sentMail

	d := NewDispatcher(st)
	d.Use(models.NotificationEmail, testEmailSender(&sent, errors.New("relay refused")))
	if err := d.Register(ctx, models.NotificationChannel{Account: "bob.eth", Type: models.NotificationEmail, Recipient: "bob@example.com"}); err != nil {
		t.Fatal(err)
	}

	err := d.Dispatch(ctx, models.DeliveryInformation{To: "bob.eth", From: "alice.eth"})
	if err == nil || !strings.Contains(err.Error(), "relay refused") {
		t.Errorf("Expected relay error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	d := NewDispatcher(store.NewMemoryStore())
	var sent []sentMail
	d.Use(models.NotificationEmail, testEmailSender(&sent, nil))

	cases := []models.NotificationChannel{
		{Account: "bob.eth", Type: models.NotificationEmail, Recipient: "not an address"},
		{Account: "bob.eth", Type: "PIGEON", Recipient: "coop 7"},
	}
	for _, ch := range cases {
		if err := d.Register(context.Background(), ch); !errors.Is(err, relayerr.ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", ch, err)
		}
	}
}

func TestComposeStripsHeaderBreaks(t *testing.T) {
	var sent []sentMail
	s := testEmailSender(&sent, nil)

	msg := string(s.compose("bob@example.com", models.DeliveryInformation{
		To:   "bob.eth",
		From: "0x1111111111111111111111111111111111111111.addr.a\r\nbcc:victim@evil.com",
	}))

	head, _, _ := strings.Cut(msg, "\r\n\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), "bcc:") {
			t.Fatalf("sender injected a header: %q", head)
		}
	}
	if !strings.Contains(head, "Subject: New message from 0x1111111111111111111111111111111111111111.addr.abcc:victim@evil.com") {
		t.Errorf("unexpected subject in %q", head)
	}
}
