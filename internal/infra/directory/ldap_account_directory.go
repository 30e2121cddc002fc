package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"expiry_notifier/internal/domain/account"
)

const (
	attrUsername       = "sAMAccountName"
	attrMail           = "mail"
	attrManager        = "manager"
	attrAccountExpires = "accountExpires"
)

// Searcher is the part of *ldap.Conn the directory needs.
type Searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
}

// LDAPAccountDirectory implements account.Directory against Active Directory.
type LDAPAccountDirectory struct {
	conn           Searcher
	baseDN         string
	categoryMarker string
	pageSize       uint32
	includeExpired bool
	now            func() time.Time
	logger         logrus.FieldLogger
}

func NewLDAPAccountDirectory(conn Searcher, baseDN, categoryMarker string, pageSize uint32, logger logrus.FieldLogger) *LDAPAccountDirectory {
	if pageSize == 0 {
		pageSize = 500
	}
	return &LDAPAccountDirectory{
		conn:           conn,
		baseDN:         baseDN,
		categoryMarker: strings.ToLower(categoryMarker),
		pageSize:       pageSize,
		now:            time.Now,
		logger:         logger,
	}
}

// IncludeExpired widens ListExpiring to accounts whose expiry date has
// already passed.
func (d *LDAPAccountDirectory) IncludeExpired(include bool) *LDAPAccountDirectory {
	d.includeExpired = include
	return d
}

// ExpiringUsersFilter builds the LDAP filter for user accounts whose
// accountExpires lies in [from, to).
func ExpiringUsersFilter(from, to time.Time) string {
	return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(accountExpires>=%d)(!(accountExpires>=%d)))",
		ToFileTime(from), ToFileTime(to))
}

// InCategory reports whether dn carries the category marker, ignoring case.
func (d *LDAPAccountDirectory) InCategory(dn string) bool {
	return strings.Contains(strings.ToLower(dn), d.categoryMarker)
}

// ListExpiring returns users in the category expiring between the start of
// today (or any time in the past with IncludeExpired) and the end of the
// window. Paging is handled by the LDAP client.
func (d *LDAPAccountDirectory) ListExpiring(ctx context.Context, days int) ([]account.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := d.now()
	from := account.StartOfDay(now)
	if d.includeExpired {
		from = earliestExpiry
	}
	filter := ExpiringUsersFilter(from, account.WindowEnd(now, days))
	req := ldap.NewSearchRequest(
		d.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{attrUsername, attrAccountExpires},
		nil,
	)

	d.logger.Debugf("Searching %s with filter %s", d.baseDN, filter)
	res, err := d.conn.SearchWithPaging(req, d.pageSize)
	if err != nil {
		return nil, fmt.Errorf("error searching expiring accounts: %w", err)
	}

	candidates := make([]account.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		if !d.InCategory(e.DN) {
			continue
		}
		raw := e.GetAttributeValue(attrAccountExpires)
		ft, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			d.logger.Warnf("Skipping %s: unreadable accountExpires %q: %v", e.DN, raw, err)
			continue
		}
		expiresAt, ok := FromFileTime(ft)
		if !ok {
			continue
		}
		candidates = append(candidates, account.Candidate{
			DN:        e.DN,
			Username:  e.GetAttributeValue(attrUsername),
			ExpiresAt: expiresAt,
		})
	}
	d.logger.Debugf("Directory returned %d entries, %d in category", len(res.Entries), len(candidates))
	return candidates, nil
}

// GetAccount reads the username, mail and manager attributes of one identity.
func (d *LDAPAccountDirectory) GetAccount(ctx context.Context, dn string) (*account.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)",
		[]string{attrUsername, attrMail, attrManager},
		nil,
	)
	res, err := d.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s", account.ErrAccountNotFound, dn)
		}
		return nil, fmt.Errorf("error looking up %s: %w", dn, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", account.ErrAccountNotFound, dn)
	}

	e := res.Entries[0]
	return &account.Entry{
		DN:        e.DN,
		Username:  e.GetAttributeValue(attrUsername),
		Email:     e.GetAttributeValue(attrMail),
		ManagerDN: e.GetAttributeValue(attrManager),
	}, nil
}
