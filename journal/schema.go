package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	strategy TEXT NOT NULL,
	symbols TEXT NOT NULL,
	policy TEXT NOT NULL,
	schedule TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	capital REAL NOT NULL,
	end_balance REAL,
	merged INTEGER NOT NULL,
	config TEXT NOT NULL,
	notes TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	run_id TEXT NOT NULL,
	date TEXT NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL,
	price REAL NOT NULL,
	shares INTEGER NOT NULL,
	lot INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS round_trips (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	entry_date TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_date TEXT NOT NULL,
	exit_price REAL,
	shares INTEGER NOT NULL,
	pnl REAL,
	lots INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily (
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	date TEXT NOT NULL,
	high REAL,
	low REAL,
	close REAL,
	shares INTEGER NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_round_trips_run ON round_trips(run_id);
CREATE INDEX IF NOT EXISTS idx_daily_run ON daily(run_id, symbol, date);
CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics(run_id, name);
`
