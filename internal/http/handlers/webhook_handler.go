// Inbound SMS webhook handler.
//
// This file receives delivery-provider callbacks for inbound messages.
// Twilio posts application/x-www-form-urlencoded bodies with at least the
// From and Body fields; STOP-family keywords opt the sender out of all
// notifications and START/UNSTOP opt them back in.
//
// The endpoint always answers 200 with an empty TwiML document so the
// provider does not retry or text an error back to the user, even when the
// phone number is unknown.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// emptyTwiML tells the provider to send no reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// optOutKeywords and optInKeywords follow the standard US carrier keyword set.
var (
	optOutKeywords = map[string]struct{}{
		"STOP": {}, "STOPALL": {}, "UNSUBSCRIBE": {}, "CANCEL": {}, "END": {}, "QUIT": {},
	}
	optInKeywords = map[string]struct{}{
		"START": {}, "UNSTOP": {}, "YES": {},
	}
)

// InboundSMS godoc
// @ID          inboundSMS
// @Summary     Inbound SMS webhook
// @Description Handles provider callbacks for inbound texts; STOP opts the sender out, START opts back in.
// @Tags        Webhooks
// @Accept      x-www-form-urlencoded
// @Produce     xml
//
// @Param       From  formData  string  true  "Sender phone (E.164)"
// @Param       Body  formData  string  true  "Message text"
//
// @Success     200  {string}  string  "Empty TwiML response"
// @Router      /webhooks/sms [post]
func (h *Handlers) InboundSMS(c *gin.Context) {
	from := strings.TrimSpace(c.PostForm("From"))
	body := strings.ToUpper(strings.TrimSpace(c.PostForm("Body")))

	if from != "" {
		if _, stop := optOutKeywords[body]; stop {
			if err := h.profileSvc.SetOptOutByPhone(c.Request.Context(), from, true); err != nil {
				// Unknown numbers are normal here (forwarded spam, typos).
				log.Warn().Err(err).Msg("inbound STOP for unknown phone")
			}
		} else if _, start := optInKeywords[body]; start {
			if err := h.profileSvc.SetOptOutByPhone(c.Request.Context(), from, false); err != nil {
				log.Warn().Err(err).Msg("inbound START for unknown phone")
			}
		}
	}

	c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
}
