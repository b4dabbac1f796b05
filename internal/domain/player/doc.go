// Package player содержит доменную модель игрока: XP, уровни, журнал
// начислений и серию дней (streak).
//
// Основные правила:
//
//  1. XP только растёт. Каждое изменение XP соответствует ровно одной записи
//     Grant, уникальной по паре (user_id, dedup_key).
//  2. Уровень - чистая функция от XP по возрастающей таблице порогов
//     (LevelTable). Он хранится рядом с XP только как кэш и пересчитывается
//     в той же транзакции, что и запись XP.
//  3. Серия дней считается по гражданским датам одного часового пояса
//     продукта. Щиты (shields) закрывают пропущенные дни.
//
// Пакет не зависит от инфраструктуры: хранилища реализуют Repository и
// LedgerRepository в infrastructure/persistence.
package player
