package sqlite

// Migrations returns the schema statements, applied in order on Open.
// Each string is a single SQL statement (SQLite executes one at a time).
// Money columns hold minor units as INTEGER; times are RFC 3339 TEXT.
func Migrations() []string {
	return []string{
		// ─── Reference data ───
		`CREATE TABLE IF NOT EXISTS classifications (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL COLLATE NOCASE UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS faculties (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			code              TEXT NOT NULL DEFAULT '',
			name              TEXT NOT NULL COLLATE NOCASE UNIQUE,
			classification_id INTEGER NOT NULL REFERENCES classifications(id)
		)`,
		`CREATE TABLE IF NOT EXISTS departments (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			code          TEXT NOT NULL COLLATE NOCASE UNIQUE,
			previous_code TEXT NOT NULL DEFAULT '' COLLATE NOCASE,
			name          TEXT NOT NULL COLLATE NOCASE,
			faculty_id    INTEGER NOT NULL REFERENCES faculties(id)
		)`,
		`CREATE TABLE IF NOT EXISTS programmes (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			name              TEXT NOT NULL,
			department_id     INTEGER NOT NULL REFERENCES departments(id),
			faculty_id        INTEGER NOT NULL REFERENCES faculties(id),
			classification_id INTEGER NOT NULL REFERENCES classifications(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programmes_department ON programmes(department_id)`,
		`CREATE TABLE IF NOT EXISTS levels (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			code       TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL DEFAULT '',
			end_date   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS semesters (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			code     TEXT NOT NULL COLLATE NOCASE UNIQUE,
			name     TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			code         TEXT NOT NULL COLLATE NOCASE,
			title        TEXT NOT NULL DEFAULT '',
			units        INTEGER NOT NULL DEFAULT 0,
			programme_id INTEGER NOT NULL REFERENCES programmes(id),
			level_id     INTEGER NOT NULL DEFAULT 0,
			semester_id  INTEGER NOT NULL DEFAULT 0,
			UNIQUE(programme_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS payment_types (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL COLLATE NOCASE UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS fees (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			type_id           INTEGER NOT NULL REFERENCES payment_types(id),
			amount            INTEGER NOT NULL,
			level_id          INTEGER NOT NULL REFERENCES levels(id),
			classification_id INTEGER NOT NULL REFERENCES classifications(id),
			entry_type        TEXT NOT NULL DEFAULT '',
			description       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fees_classification ON fees(classification_id, level_id)`,

		// ─── Students and ledgers ───
		`CREATE TABLE IF NOT EXISTS students (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			matric                  TEXT NOT NULL COLLATE NOCASE UNIQUE,
			name                    TEXT NOT NULL,
			programme_id            INTEGER NOT NULL REFERENCES programmes(id),
			level_id                INTEGER NOT NULL DEFAULT 0,
			admission_session_id    INTEGER NOT NULL DEFAULT 0,
			phone                   TEXT NOT NULL DEFAULT '',
			email                   TEXT NOT NULL DEFAULT '',
			balance_brought_forward INTEGER NOT NULL DEFAULT 0,
			created_at              TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledgers (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id              INTEGER NOT NULL UNIQUE REFERENCES students(id),
			opening_balance         INTEGER NOT NULL DEFAULT 0,
			seed_balance            INTEGER NOT NULL DEFAULT 0,
			balance_carried_forward INTEGER NOT NULL DEFAULT 0,
			current_charges         INTEGER NOT NULL DEFAULT 0,
			created_at              TEXT NOT NULL
		)`,

		// ─── Registrations ───
		`CREATE TABLE IF NOT EXISTS registrations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id     INTEGER NOT NULL REFERENCES students(id),
			programme_id   INTEGER NOT NULL DEFAULT 0,
			level_id       INTEGER NOT NULL DEFAULT 0,
			session_id     INTEGER NOT NULL REFERENCES sessions(id),
			semester_id    INTEGER NOT NULL DEFAULT 0,
			state          TEXT NOT NULL,
			is_legacy      INTEGER NOT NULL DEFAULT 0,
			receipt_number TEXT NOT NULL DEFAULT '',
			gpa            REAL NOT NULL DEFAULT 0,
			entry_date     TEXT NOT NULL,
			UNIQUE(student_id, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS course_registrations (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			registration_id INTEGER NOT NULL REFERENCES registrations(id),
			course_id       INTEGER NOT NULL REFERENCES courses(id),
			course_code     TEXT NOT NULL DEFAULT '',
			units           INTEGER NOT NULL DEFAULT 0,
			brought_forward INTEGER NOT NULL DEFAULT 0,
			UNIQUE(registration_id, course_id)
		)`,

		// ─── Fee entries and payments ───
		`CREATE TABLE IF NOT EXISTS fee_entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			fee_id          INTEGER NOT NULL DEFAULT 0,
			type_id         INTEGER NOT NULL REFERENCES payment_types(id),
			description     TEXT NOT NULL DEFAULT '',
			registration_id INTEGER NOT NULL REFERENCES registrations(id),
			ledger_id       INTEGER NOT NULL REFERENCES ledgers(id),
			student_id      INTEGER NOT NULL,
			session_id      INTEGER NOT NULL,
			level_id        INTEGER NOT NULL DEFAULT 0,
			amount_due      INTEGER NOT NULL CHECK (amount_due >= 0),
			amount_paid     INTEGER NOT NULL DEFAULT 0 CHECK (amount_paid >= 0 AND amount_paid <= amount_due),
			entry_date      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_entries_ledger ON fee_entries(ledger_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_entries_registration ON fee_entries(registration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_entries_type_session ON fee_entries(type_id, session_id)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			reference      TEXT NOT NULL UNIQUE,
			ledger_id      INTEGER NOT NULL REFERENCES ledgers(id),
			student_id     INTEGER NOT NULL,
			session_id     INTEGER NOT NULL DEFAULT 0,
			level_id       INTEGER NOT NULL DEFAULT 0,
			amount         INTEGER NOT NULL CHECK (amount > 0),
			amount_due     INTEGER NOT NULL DEFAULT 0,
			payment_date   TEXT NOT NULL,
			method         TEXT NOT NULL,
			kind           TEXT NOT NULL,
			bank_account   TEXT NOT NULL DEFAULT '',
			teller_number  TEXT NOT NULL DEFAULT '',
			receipt_number TEXT NOT NULL DEFAULT '',
			purpose        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_ledger ON payments(ledger_id)`,
		`CREATE TABLE IF NOT EXISTS payment_fee_entries (
			payment_id   INTEGER NOT NULL REFERENCES payments(id),
			fee_entry_id INTEGER NOT NULL REFERENCES fee_entries(id),
			position     INTEGER NOT NULL,
			PRIMARY KEY (payment_id, fee_entry_id)
		)`,

		// ─── Results ───
		`CREATE TABLE IF NOT EXISTS result_books (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id INTEGER NOT NULL UNIQUE REFERENCES students(id),
			cgpa       REAL NOT NULL DEFAULT 0,
			honours    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS result_entries (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id       INTEGER NOT NULL REFERENCES students(id),
			result_book_id   INTEGER NOT NULL REFERENCES result_books(id),
			registration_id  INTEGER NOT NULL DEFAULT 0,
			session_id       INTEGER NOT NULL,
			semester_id      INTEGER NOT NULL DEFAULT 0,
			level_id         INTEGER NOT NULL DEFAULT 0,
			course_id        INTEGER NOT NULL REFERENCES courses(id),
			course_code      TEXT NOT NULL DEFAULT '',
			units            INTEGER NOT NULL DEFAULT 0,
			ca_score         REAL NOT NULL DEFAULT 0,
			test_score       REAL NOT NULL DEFAULT 0,
			practicals_score REAL NOT NULL DEFAULT 0,
			score            REAL NOT NULL DEFAULT 0,
			grade            TEXT NOT NULL DEFAULT '',
			grade_point      REAL NOT NULL DEFAULT 0,
			is_pass          INTEGER NOT NULL DEFAULT 0,
			points_obtained  REAL NOT NULL DEFAULT 0,
			status           TEXT NOT NULL,
			remarks          TEXT NOT NULL DEFAULT '',
			entry_date       TEXT NOT NULL,
			UNIQUE(student_id, session_id, semester_id, course_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_result_entries_registration ON result_entries(registration_id)`,

		// ─── Legacy import staging ───
		`CREATE TABLE IF NOT EXISTS import_rows (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT NOT NULL,
			row_key    TEXT NOT NULL,
			fields     TEXT NOT NULL,
			status     TEXT NOT NULL,
			remarks    TEXT NOT NULL DEFAULT '',
			batch_id   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(kind, row_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_rows_status ON import_rows(kind, status)`,
	}
}
