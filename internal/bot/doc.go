// Package bot — “склейка” вокруг discord и recruit, реализующая
// прикладного бота набора рекрутов. Бот:
//   - встречает новых участников онбордингом в ЛС;
//   - передаёт нажатия кнопок и формы в recruit.Service и отвечает на них;
//   - замечает роль рекрута, выданную вручную, и доводит заявку до ready;
//   - обрабатывает команды (!help, !onboarding*, !role_panel, !recruits,
//     !recruit, !sync_profile*, !repair_recruits, !reload_roles);
//   - периодически чинит заявки без каналов (repair-loop).
//
// Жизненный цикл:
//   - Создать бота через New(svc, directory, roles, opts).
//   - Подключить gateway: SetSession(...).
//   - Запустить Start() и остановить Stop(); фатальная ошибка gateway
//     приходит в Err().
//
// Пример:
//
//	roles, _ := bot.LoadRoles("conf/roles.yaml")
//	b := bot.New(svc, dir, roles, bot.Options{GuildID: cfg.GuildID})
//	b.SetSession(discord.NewSession(discord.SessionConfig{Token: cfg.DiscordToken}))
//
//	if err := b.Start(); err != nil { log.Fatal(err) }
//	defer b.Stop()
//	<-ctx.Done()
//
// Конфигурация ролей:
//   - хранится в YAML (см. RolesConfig): игровые роли и роли для операций
//     с подписями на нескольких языках. Команда !reload_roles перечитывает
//     файл без перезапуска.
package bot
