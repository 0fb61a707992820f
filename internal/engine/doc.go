// Package engine — движок workflow-шаблонов.
//
// Engine хранит зарегистрированные шаблоны и выполняет их шаги строго
// последовательно: guard контура, вызов привязанного backend'а, при
// падении — fallback-цепочка по одному разу на кандидата. Критический
// шаг без успешного кандидата прерывает workflow; некритический
// пропускается.
package engine
