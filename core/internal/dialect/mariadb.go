package dialect

// MariaDBDialect is MySQL under another name. MariaDB 10.5 added RETURNING
// to INSERT and DELETE but not to UPDATE, so like MySQL it reads written
// rows back with a follow-up select.
type MariaDBDialect struct {
	MySQLDialect
}

func (d *MariaDBDialect) Name() string {
	return "mariadb"
}
