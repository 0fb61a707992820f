// Package repo — audit trail оркестрации в PostgreSQL.
//
// Хранилище опционально: без настроенной БД оркестратор работает
// полностью в памяти. Пишутся только терминальные исходы запросов —
// доменные сущности (профили, шаблоны, активные instance'ы)
// в БД не живут.
//
// Схема:
//
//	CREATE TABLE orchestration_outcomes (
//	    id           UUID PRIMARY KEY,
//	    strategy     TEXT NOT NULL,
//	    request_type TEXT,
//	    backend      TEXT,
//	    ok           BOOLEAN NOT NULL,
//	    error        TEXT,
//	    failed_stage TEXT,
//	    instance     JSONB,
//	    task_results JSONB,
//	    duration_ms  BIGINT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
package repo
