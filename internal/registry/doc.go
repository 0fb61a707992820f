// Package registry — реестр backend'ов и scorer.
//
// Registry хранит профили возможностей и текущую нагрузку каждого
// backend'а; Scorer ранжирует активные backend'ы под требуемые
// возможности и выбирает среди почти равных наименее нагруженный.
//
// Registry и состояние контуров — единственные долгоживущие
// разделяемые ресурсы request-обработки; всё остальное локально
// для запроса.
package registry
