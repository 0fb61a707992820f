// Package cli — команды CLI поверх HTTP API оркестратора.
//
// Пакет не импортирует internal/api: типы ответов дублируются,
// чтобы CLI оставался независимым клиентом.
package cli
