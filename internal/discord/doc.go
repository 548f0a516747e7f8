// Package discord — адаптер Discord: WebSocket-соединение с gateway для
// событий и REST-клиент, реализующий directory.Gateway.
//
// Session подключается к gateway, проходит Identify (или Resume после
// обрыва), держит heartbeat и переподключается с экспоненциальным
// backoff. События (колбэки поля структуры):
//   - OnReady, OnConnected, OnDisconnected, OnError;
//   - OnMemberAdd, OnMemberUpdate, OnMemberRemove, OnRolesChanged;
//   - OnMessage, OnInteraction.
//
// Безопасность и устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Нет ACK на heartbeat — соединение считается подвисшим и
//     пересоздаётся.
//   - REST повторяет ответы 429 после паузы из retry_after.
//   - На долгие действия сначала отвечают Callback{Deferred: true}, итог
//     дописывает EditResponse.
//
// Пример:
//
//	rest := discord.NewREST(token)
//	dir := discord.NewDirectory(rest, guildID)
//	s := discord.NewSession(discord.SessionConfig{Token: token})
//	s.OnMemberAdd = func(ev discord.MemberEvent) { ... }
//	s.OnInteraction = func(in discord.Interaction) {
//	    _ = dir.Respond(ctx, in, discord.Callback{Message: &directory.Message{Content: "ok"}, Ephemeral: true})
//	}
//	if err := s.Run(ctx); err != nil { log.Fatal(err) }
package discord
