// Package validate checks email addresses in three stages: syntax, MX record
// and an optional SMTP recipient check.
package validate

import (
	"context"
	"errors"
	"net"
	"net/mail"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/shpitdev/byline-enricher/internal/contact"
)

const (
	ReasonSyntax = "Invalid email syntax"
	ReasonNoMX   = "No MX record found"
	ReasonSMTP   = "SMTP validation failed"
)

// Result is the verdict for one address.
type Result struct {
	SyntaxValid bool
	MXValid     bool
	SMTPValid   contact.Tri
	Valid       bool
	Reason      string
}

// Resolver looks up mail exchangers. *net.Resolver satisfies it.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config tunes the SMTP check.
type Config struct {
	// SMTPPort is the port the check connects to on the MX host.
	SMTPPort int
	// SMTPTimeout bounds the whole SMTP conversation.
	SMTPTimeout time.Duration
	// HeloName is sent in the greeting.
	HeloName string
	// MailFrom is the fixed MAIL FROM address.
	MailFrom string
}

func (c Config) withDefaults() Config {
	if c.SMTPPort <= 0 {
		c.SMTPPort = 25
	}
	if c.SMTPTimeout <= 0 {
		c.SMTPTimeout = 10 * time.Second
	}
	if strings.TrimSpace(c.HeloName) == "" {
		c.HeloName = "localhost"
	}
	if strings.TrimSpace(c.MailFrom) == "" {
		c.MailFrom = "test@example.com"
	}
	return c
}

// Validator holds no per-call state and is safe for concurrent use.
type Validator struct {
	resolver Resolver
	dialer   Dialer
	cfg      Config
	logger   *zap.Logger
}

// New builds a validator. Nil resolver/dialer fall back to the net package defaults.
func New(cfg Config, resolver Resolver, dialer Dialer, logger *zap.Logger) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		resolver: resolver,
		dialer:   dialer,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Validate runs the stages in order. Network failures downgrade to false or
// unknown; nothing is returned as an error.
func (v *Validator) Validate(ctx context.Context, email string, allowSMTP bool) Result {
	email = strings.ToLower(strings.TrimSpace(email))

	res := Result{SMTPValid: contact.Unknown}
	res.SyntaxValid = ValidSyntax(email)
	if !res.SyntaxValid {
		res.Reason = ReasonSyntax
		return res
	}

	at := strings.LastIndexByte(email, '@')
	domain, _ := asciiDomain(email[at+1:])
	hosts := v.mxHosts(ctx, domain)
	res.MXValid = len(hosts) > 0
	if !res.MXValid {
		res.Reason = ReasonNoMX
		return res
	}

	if allowSMTP {
		res.SMTPValid = v.checkRecipient(ctx, hosts[0], email[:at+1]+domain)
	}

	res.Valid = !allowSMTP || res.SMTPValid != contact.False
	if !res.Valid {
		res.Reason = ReasonSMTP
	}
	return res
}

// ValidateAll validates every non-empty address once.
func (v *Validator) ValidateAll(ctx context.Context, emails []string, allowSMTP bool) map[string]Result {
	out := make(map[string]Result, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		if _, ok := out[e]; ok {
			continue
		}
		out[e] = v.Validate(ctx, e, allowSMTP)
	}
	return out
}

// ValidSyntax reports whether email has a local part, a single "@" and a
// dotted domain made of DNS labels. Internationalized domains are checked in
// their punycode form.
func ValidSyntax(email string) bool {
	if email == "" || len(email) > 254 || strings.Count(email, "@") != 1 {
		return false
	}
	at := strings.IndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if local == "" || len(local) > 64 || domain == "" {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	domain, ok := asciiDomain(domain)
	if !ok || !validDomain(domain) {
		return false
	}
	ascii := local + "@" + domain
	addr, err := mail.ParseAddress(ascii)
	if err != nil {
		return false
	}
	return addr.Name == "" && strings.EqualFold(addr.Address, ascii)
}

// asciiDomain converts an internationalized domain to its A-label form.
func asciiDomain(domain string) (string, bool) {
	a, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return domain, false
	}
	return a, true
}

func validDomain(domain string) bool {
	if len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	for _, l := range labels {
		if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for _, r := range l {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	_, err := strconv.Atoi(tld)
	return err != nil
}

// mxHosts returns MX hosts ordered by preference. Any DNS failure yields none.
func (v *Validator) mxHosts(ctx context.Context, domain string) []string {
	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			v.logger.Debug("mx lookup: domain has no mail exchangers", zap.String("domain", domain))
		} else {
			v.logger.Debug("mx lookup failed", zap.String("domain", domain), zap.Error(err))
		}
		return nil
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	hosts := make([]string, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		h := strings.TrimSuffix(strings.TrimSpace(r.Host), ".")
		if h == "" {
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts
}

// checkRecipient asks the MX host whether it accepts the recipient. Only a 250-class
// reply is a definite yes; everything else is inconclusive because many
// servers refuse to confirm mailboxes without delivering.
func (v *Validator) checkRecipient(ctx context.Context, host, email string) contact.Tri {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.SMTPTimeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(v.cfg.SMTPPort))
	conn, err := v.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		v.logger.Debug("smtp check: dial failed", zap.String("host", addr), zap.Error(err))
		return contact.Unknown
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		v.logger.Debug("smtp check: greeting failed", zap.String("host", addr), zap.Error(err))
		return contact.Unknown
	}
	defer func() {
		_ = c.Quit()
		_ = c.Close()
	}()

	if err := c.Hello(v.cfg.HeloName); err != nil {
		v.logger.Debug("smtp check: helo rejected", zap.String("host", addr), zap.Error(err))
		return contact.Unknown
	}
	if err := c.Mail(v.cfg.MailFrom); err != nil {
		v.logger.Debug("smtp check: sender rejected", zap.String("host", addr), zap.Error(err))
		return contact.Unknown
	}
	if err := c.Rcpt(email); err != nil {
		v.logger.Debug("smtp check: recipient not confirmed", zap.String("host", addr), zap.Error(err))
		return contact.Unknown
	}
	return contact.True
}
