package emailcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	formatPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	extractPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// personalDomains are free mailbox providers that never count as corporate.
var personalDomains = map[string]struct{}{
	"gmail.com": {}, "googlemail.com": {}, "yahoo.com": {}, "yahoo.co.uk": {},
	"yahoo.ca": {}, "yahoo.com.au": {}, "yahoo.co.in": {}, "hotmail.com": {},
	"outlook.com": {}, "live.com": {}, "msn.com": {}, "aol.com": {},
	"icloud.com": {}, "me.com": {}, "mac.com": {}, "protonmail.com": {},
	"proton.me": {}, "tutanota.com": {}, "zoho.com": {}, "yandex.com": {},
	"mail.com": {}, "gmx.com": {}, "inbox.com": {}, "fastmail.com": {},
	"rediffmail.com": {},
}

var institutionalSuffixes = []string{".edu", ".gov", ".org"}

// Resolver is the subset of *net.Resolver used for domain checks.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Result is the itemized report shown to the user.
type Result struct {
	Email       string   `json:"email"`
	FormatValid bool     `json:"format_valid"`
	DomainValid bool     `json:"domain_valid"`
	IsCorporate bool     `json:"is_corporate"`
	IsValid     bool     `json:"is_valid"`
	Messages    []string `json:"messages"`
}

type Validator struct {
	resolver Resolver
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Validator)

func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolver = r }
}

func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

func NewValidator(logger *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		resolver: net.DefaultResolver,
		timeout:  5 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	return v
}

// Validate runs the format, DNS and corporate checks. It never returns an
// error: lookup failures become failed checks with a message.
func (v *Validator) Validate(ctx context.Context, email string) Result {
	email = strings.TrimSpace(email)
	res := Result{Email: email}

	if !formatPattern.MatchString(email) {
		res.Messages = append(res.Messages, "❌ Invalid email format")
		return res
	}
	res.FormatValid = true
	res.Messages = append(res.Messages, "✅ Email format is valid")

	domain := Domain(email)

	ok, msg := v.checkDomain(ctx, domain)
	res.DomainValid = ok
	res.Messages = append(res.Messages, mark(ok, msg))

	corp, msg := IsCorporateDomain(domain)
	res.IsCorporate = corp
	res.Messages = append(res.Messages, mark(corp, msg))

	res.IsValid = res.FormatValid && res.DomainValid && res.IsCorporate

	v.logger.Debug("Email validated",
		zap.String("domain", domain),
		zap.Bool("domain_valid", res.DomainValid),
		zap.Bool("is_corporate", res.IsCorporate),
		zap.Bool("is_valid", res.IsValid),
	)
	return res
}

func (v *Validator) checkDomain(ctx context.Context, domain string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	mx, mxErr := v.resolver.LookupMX(ctx, domain)
	if mxErr == nil && len(mx) > 0 {
		return true, "Domain has valid MX records"
	}

	ips, aErr := v.resolver.LookupIP(ctx, "ip4", domain)
	if aErr == nil && len(ips) > 0 {
		return true, "Domain exists but no MX record found"
	}

	err := mxErr
	if err == nil {
		err = aErr
	}
	var dnsErr *net.DNSError
	switch {
	case err == nil:
		return false, "Domain validation failed"
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return false, "Domain does not exist"
	default:
		v.logger.Warn("DNS lookup failed", zap.String("domain", domain), zap.Error(err))
		return false, fmt.Sprintf("DNS lookup error: %v", err)
	}
}

// IsCorporateDomain applies the denylist heuristic: anything not a known
// personal provider with at least two labels is treated as corporate.
func IsCorporateDomain(domain string) (bool, string) {
	domain = strings.ToLower(domain)
	if _, personal := personalDomains[domain]; personal {
		return false, fmt.Sprintf("'%s' is a personal email provider", domain)
	}
	for _, suffix := range institutionalSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true, fmt.Sprintf("Domain '%s' appears to be institutional/corporate", domain)
		}
	}
	if labels := strings.Split(domain, "."); len(labels) >= 2 && labels[0] != "" {
		return true, fmt.Sprintf("Domain '%s' appears to be corporate", domain)
	}
	return false, "Unable to determine if email is corporate"
}

// IsPersonalDomain reports whether domain is on the personal-provider denylist.
func IsPersonalDomain(domain string) bool {
	_, ok := personalDomains[strings.ToLower(domain)]
	return ok
}

// Domain returns the lowercased part after the last '@'.
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// ExtractEmail returns the first address-looking token in free text, or the
// trimmed text itself when none is found.
func ExtractEmail(text string) string {
	if found := extractPattern.FindString(text); found != "" {
		return found
	}
	return strings.TrimSpace(text)
}

func mark(ok bool, msg string) string {
	if ok {
		return "✅ " + msg
	}
	return "❌ " + msg
}

// Summary renders the itemized failure text used in the chat.
func (r Result) Summary() string {
	return "Email validation failed:\n" + strings.Join(r.Messages, "\n") +
		"\n\nPlease provide a valid corporate email address."
}
