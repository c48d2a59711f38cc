package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	kit "tallybot/internal/transport"
	logx "tallybot/pkg/logx"
)

const helpText = "🤖 **Bot de Comptage de Cartes** 🃏\n\n" +
	"Bonjour ! Je compte les cartes séparément pour chaque canal.\n\n" +
	"📝 **Comment ça marche :**\n" +
	"• Envoyez un message avec des cartes entre parenthèses\n" +
	"• Exemple : Résultat du tirage (❤️♦️♣️♠️)\n" +
	"• Je compterai automatiquement chaque symbole\n\n" +
	"🎯 **Symboles reconnus :**\n" +
	"❤️ Cœurs • ♦️ Carreaux • ♣️ Trèfles • ♠️ Piques\n\n" +
	"💡 **Commandes disponibles :**\n" +
	"• /reset - Réinitialiser les compteurs\n" +
	"• /time [minutes] - Configurer bilans automatiques (5-32min)\n\n" +
	"⚡ Je suis maintenant actif et prêt à compter !"

const resetText = "✅ **Reset effectué pour ce canal**\n\n" +
	"📊 Compteurs remis à zéro\n" +
	"⏰ Bilans automatiques arrêtés\n" +
	"🔄 Historique des messages effacé\n" +
	"⏳ Éditions en attente annulées"

const timeUsageText = "⏰ **Commande /time**\n\n" +
	"Définit l'intervalle pour les bilans automatiques.\n\n" +
	"📝 **Usage :** /time [minutes]\n" +
	"📊 **Exemple :** /time 15\n\n" +
	"⏱️ **Intervalle autorisé :** 5 à 32 minutes\n\n" +
	"💡 **Note :** Le bilan sera envoyé automatiquement " +
	"et les compteurs seront remis à zéro après chaque bilan."

// parseCommand splits "/cmd@bot arg..." into the bare command name and its
// arguments. ok is false when the text is not a command at all.
func parseCommand(text string) (cmd string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd = strings.TrimPrefix(fields[0], "/")
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

// handleCommand runs a bot command; it returns false when the message is
// not a command so the caller can feed it to the counting core.
func (a *App) handleCommand(ctx context.Context, msg kit.Message) bool {
	cmd, args, ok := parseCommand(msg.Text)
	if !ok {
		return false
	}

	switch cmd {
	case "start", "help":
		a.replyCmd(ctx, msg.ChatID, helpText)
		a.noteStatus(fmt.Sprintf("Bot started in channel %d", msg.ChatID))
	case "reset":
		a.eng.Reset(msg.ChatID)
		a.forgetReportInterval(ctx, msg.ChatID)
		a.replyCmd(ctx, msg.ChatID, resetText)
		a.noteStatus(fmt.Sprintf("Reset completed for channel %d", msg.ChatID))
	case "time":
		a.handleTime(ctx, msg.ChatID, args)
	default:
		// Unknown commands are for other bots in the same chat.
		return false
	}
	return true
}

func (a *App) handleTime(ctx context.Context, channel int64, args []string) {
	if len(args) == 0 {
		a.replyCmd(ctx, channel, timeUsageText)
		return
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		a.replyCmd(ctx, channel, timeUsageText)
		return
	}

	if err := a.eng.ConfigureReport(channel, minutes); err != nil {
		a.replyCmd(ctx, channel, fmt.Sprintf(
			"❌ **Erreur d'intervalle**\n\n"+
				"L'intervalle doit être entre 5 et 32 minutes.\n"+
				"Vous avez saisi : %d minutes", minutes))
		return
	}

	a.saveReportInterval(ctx, channel, minutes)
	a.replyCmd(ctx, channel, fmt.Sprintf(
		"✅ **Bilan automatique configuré**\n\n"+
			"⏰ **Intervalle :** %d minutes\n"+
			"🕐 **Prochaine execution :** dans %d minutes\n\n"+
			"📊 Le bilan sera envoyé automatiquement avec l'heure du Bénin,\n"+
			"puis les compteurs seront remis à zéro.", minutes, minutes))
	a.noteStatus(fmt.Sprintf("Auto report set to %dmin for channel %d", minutes, channel))
}

func (a *App) replyCmd(ctx context.Context, channel int64, text string) {
	if err := a.sink.Reply(ctx, channel, text); err != nil {
		a.log.Warn("command reply failed", logx.Int64("chat", channel), logx.Err(err))
	}
}
