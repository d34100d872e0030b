package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	// Allow reports whether a user may run admin-only handlers. When nil,
	// only AdminID is allowed.
	Allow    func(userID int64) bool
	AdminID  int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allowed(userID int64) bool {
	if o.Allow != nil {
		return o.Allow(userID)
	}
	return o.AdminID != 0 && userID == o.AdminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || !opts.allowed(sender.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
