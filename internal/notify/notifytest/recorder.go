// Package notifytest provides a notify.Sender that records mail for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/classbook/internal/notify"
)

// Recorder keeps every mail it is given. When Err is set it records nothing
// and returns Err instead.
type Recorder struct {
	mu   sync.Mutex
	sent []notify.Mail
	Err  error
}

func (r *Recorder) SendMail(_ context.Context, m notify.Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, m)
	return nil
}

// Sent returns a copy of the recorded mail.
func (r *Recorder) Sent() []notify.Mail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Mail(nil), r.sent...)
}

// SetErr makes subsequent sends fail with err.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
}
