package dataset

import "strings"

// Reserved column names.
const (
	LabelColumn  = "label"
	DomainColumn = "domain_name"
)

// CategoricalColumns is the fixed tuple consumed by the categorical
// probability encoder under the generic labeling policy.
var CategoricalColumns = []string{
	"geo_continent_hash",
	"geo_countries_hash",
	"rdap_registrar_name_hash",
	"tls_root_authority_hash",
	"tls_leaf_authority_hash",
	"lex_tld_hash",
}

// nonTrainingColumns are raw collection fields excluded from every
// feature set: evaluation timestamps, raw DNS record payloads,
// geolocation lists and RDAP registration metadata.
var nonTrainingColumns = []string{
	"dns_evaluated_on",
	"rdap_evaluated_on",
	"tls_evaluated_on",
	"ip_data",
	"countries",
	"latitudes",
	"longitudes",
	"dns_dnssec",
	"dns_zone_dnskey_selfsign_ok",
	"dns_email_extras",
	"dns_ttls",
	"dns_zone",
	"dns_zone_SOA",
	"dns_A",
	"dns_AAAA",
	"dns_CNAME",
	"dns_MX",
	"dns_NS",
	"dns_SOA",
	"dns_TXT",
	"rdap_registration_date",
	"rdap_last_changed_date",
	"rdap_expiration_date",
	"rdap_dnssec",
	"rdap_entities",
}

// DropNonTraining removes every non-training column present.
func (t *Table) DropNonTraining() {
	t.Drop(nonTrainingColumns...)
}

// SelectLexical returns a table restricted to the domain name, the
// label and every lexical (lex-prefixed) column, preserving order.
func (t *Table) SelectLexical() *Table {
	names := []string{DomainColumn, LabelColumn}
	for _, n := range t.Names() {
		if strings.HasPrefix(n, "lex") {
			names = append(names, n)
		}
	}
	return t.Select(names)
}

// SelectPrefix returns a table holding only columns with the given
// name prefix.
func (t *Table) SelectPrefix(prefix string) *Table {
	var names []string
	for _, n := range t.Names() {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}
	return t.Select(names)
}
