package notify

import (
	"context"
	"fmt"
)

// Dispatcher fans an OTP code out over SMS and email. Both channels must
// succeed; callers rely on dispatch failing before they write any state.
type Dispatcher struct {
	sms   SMSSender
	email EmailSender
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(sms SMSSender, email EmailSender) *Dispatcher {
	return &Dispatcher{sms: sms, email: email}
}

// Dispatch sends the code to the phone and the email address. The message
// carries the plaintext code in transit only; it is never persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, phone, email, code string) error {
	message := fmt.Sprintf("Your verification code is %s", code)
	if err := d.sms.SendSMS(ctx, phone, message); err != nil {
		return fmt.Errorf("sms dispatch: %w", err)
	}
	if err := d.email.SendEmail(ctx, email, message); err != nil {
		return fmt.Errorf("email dispatch: %w", err)
	}
	return nil
}
