package conversation

import (
	"fmt"
	"time"
)

func greeting(company string) string {
	return fmt.Sprintf("Hello! I'm Alex from %s. \n"+
		"I help businesses find the right technology solutions. "+
		"We specialize in maritime software and custom development services.\n\n"+
		"To provide relevant information, could you please share your corporate email address?", company)
}

func codeSent(email string, ttl time.Duration) string {
	return fmt.Sprintf("✅ Email validated successfully.\n\n"+
		"I've sent a 6-digit code to %s. Please enter it below to continue. "+
		"Code expires in %d minutes.", email, int(ttl/time.Minute))
}

func codeNotSent(reason string) string {
	return "Email validation successful, but couldn't send verification code: " + reason
}

const (
	msgCodeFormat = "Please enter the 6-digit verification code from your email, or type \"resend\" for a new code."
	msgCodeResent = "📧 New verification code sent to your email!"
	msgRestart    = "Too many failed attempts. Please request a new verification code by sharing your corporate email address again."
	msgFollowUp   = "Are you still there? Let me know if you have any other questions about our products or services."
	msgSelection  = "Please choose what you'd like to explore: reply with **products** for Maritime Products or **services** for Technology Services."
)

func verified(company string) string {
	return fmt.Sprintf("✅ Email verified! Welcome to %s.\n\n"+
		"What would you like to explore today?\n\n"+
		"• **Maritime Products**: the AniSol suite for ship management\n"+
		"• **Technology Services**: custom software, AI and integration\n\n"+
		"Reply with **products** or **services**.", company)
}

func invalidCode(remaining int) string {
	if remaining == 1 {
		return "❌ Invalid verification code. 1 attempt remaining."
	}
	return fmt.Sprintf("❌ Invalid verification code. %d attempts remaining.", remaining)
}

func closing(reason, contactEmail string) string {
	switch reason {
	case EndReasonInactivity:
		return "This chat has ended due to inactivity. Thank you for your interest! " +
			"Reach us anytime at " + contactEmail + "."
	default:
		return "Thank you for chatting with us! Our team can be reached at " + contactEmail + "."
	}
}
