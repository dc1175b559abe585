// Package common — errors.go определяет ошибки, общие для всех модулей сверки.
// Они позволяют вызывающему коду различать «хранилище недоступно» (фатально
// для всего прохода) и ошибки отдельной сущности (пишутся в errors[] отчёта).
package common

import "errors"

// Ошибки хранилища
var (
	// ErrStoreUnavailable — база недоступна, проход прерывается без обработки сущностей
	ErrStoreUnavailable = errors.New("хранилище недоступно")
	// ErrUnknownTable — запрос к таблице/колонке вне белого списка
	ErrUnknownTable = errors.New("неизвестная таблица или колонка")
)

// Ошибки запроса на сверку
var (
	// ErrUnknownMode — режим не audit / restore_earnings / rebuild_balances
	ErrUnknownMode = errors.New("неизвестный режим сверки")
	// ErrInvalidBatch — некорректные batchSize/offset
	ErrInvalidBatch = errors.New("некорректный размер пачки или смещение")
	// ErrUserNotFound — пользователь из userFilter не найден
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrBattleNotFound — битва из battleFilter не найдена
	ErrBattleNotFound = errors.New("битва не найдена")
)
