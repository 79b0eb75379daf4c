package application

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/domain/games"
	"atos/internal/ports/input"
	"atos/internal/ports/output"
)

var _ input.MatchUseCase = (*MatchEngine)(nil)

// scorePattern extracts the two game counts from a reported score.
var scorePattern = regexp.MustCompile(`([0-9]+) *- *([0-9]+)`)

// channelTTL is how long a closed set's channel survives after its last
// message before the cleanup pass deletes it.
const channelTTL = 5 * time.Minute

// MatchEngine polls the bracket service and drives open sets to completion:
// launching, score intake, inactivity enforcement and channel cleanup.
type MatchEngine struct {
	store    output.StateStore
	bracket  output.BracketService
	gateway  output.ChatGateway
	streams  *StreamQueueService
	channels Channels
	roles    Roles
	now      func() time.Time
}

func NewMatchEngine(
	store output.StateStore,
	bracket output.BracketService,
	gateway output.ChatGateway,
	streams *StreamQueueService,
	channels Channels,
	roles Roles,
) *MatchEngine {
	return &MatchEngine{
		store:    store,
		bracket:  bracket,
		gateway:  gateway,
		streams:  streams,
		channels: channels,
		roles:    roles,
		now:      time.Now,
	}
}

// Poll runs one orchestration cycle. The bracket is fetched exactly once and
// every pass works from that single snapshot, bounding external calls to one
// listing per cycle.
func (e *MatchEngine) Poll(ctx context.Context) {
	t, err := e.store.Tournament(ctx)
	if err != nil {
		log.Printf("❌ Lecture du tournoi avant le cycle de polling: %v", err)
		return
	}
	if !t.IsUnderway() {
		return
	}

	var snapshot []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		snapshot, err = e.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open"}})
		return err
	})
	if err != nil {
		log.Printf("❌ Récupération du bracket: %v", err)
		return
	}

	e.launchPass(ctx, t, snapshot)
	e.streams.CallStream(ctx, snapshot)
	e.inactivityPass(ctx, t, snapshot)
	e.cleanupPass(ctx, snapshot)
}

// launchPass marks every not-yet-started open set underway, creates its
// temporary channel and announces the pairings in the queue channel.
func (e *MatchEngine) launchPass(ctx context.Context, t *entities.Tournament, snapshot []entities.Match) {
	participants, err := e.store.Participants(ctx)
	if err != nil {
		log.Printf("❌ Lecture des participants (lancement): %v", err)
		return
	}
	streams, err := e.store.Streams(ctx)
	if err != nil {
		log.Printf("❌ Lecture des streams (lancement): %v", err)
		return
	}

	var sets strings.Builder
	for i := range snapshot {
		m := &snapshot[i]
		if m.Started() {
			continue
		}

		err := withRetry(ctx, func() error { return e.bracket.MarkUnderway(ctx, t.ID, m.ID) })
		if err != nil {
			log.Printf("❌ Passage underway du set %d: %v", m.PlayOrder, err)
			continue
		}

		p1 := participants.ByBracketID(m.Player1ID)
		p2 := participants.ByBracketID(m.Player2ID)
		if p1 == nil || p2 == nil {
			log.Printf("⚠️ Joueur introuvable pour le set %d (bracket %d vs %d)", m.PlayOrder, m.Player1ID, m.Player2ID)
			continue
		}

		queued := streams.IsQueued(m.PlayOrder)
		top8 := t.IsTop8(m.Round)

		channelTxt := e.openMatchChannel(ctx, t, m, p1, p2, queued, top8)

		onStream, top8Txt := "", ""
		if queued {
			onStream = "(**on stream**) :tv:"
		}
		if top8 {
			top8Txt = "(**top 8**) :fire:"
		}
		fmt.Fprintf(&sets, ":arrow_forward: **%s** : <@%s> vs <@%s> %s\n%s %s\n\n",
			roundLabel(m.Round), p1.UserID, p2.UserID, onStream, channelTxt, top8Txt)
	}

	if sets.Len() > 0 {
		e.announceSets(ctx, sets.String())
	}
}

// openMatchChannel creates the permission-scoped temporary channel for the
// set and posts the set briefing inside; on failure, players play elsewhere.
func (e *MatchEngine) openMatchChannel(ctx context.Context, t *entities.Tournament, m *entities.Match, p1, p2 *entities.Participant, queued, top8 bool) string {
	name := strconv.Itoa(m.PlayOrder)
	channelID, err := e.gateway.CreateMatchChannel(ctx, name, m.Round, []string{p1.UserID, p2.UserID})
	if err != nil {
		log.Printf("⚠️ Création du channel pour le set %d: %v", m.PlayOrder, err)
		if queued {
			dm := fmt.Sprintf("Tu joueras on stream pour ton prochain set contre **%s** : je te communiquerai les codes d'accès quand ce sera ton tour.", p2.DisplayName)
			if err := e.gateway.SendDM(ctx, p1.UserID, dm); err != nil {
				log.Printf("⚠️ MP stream à %s: %v", p1.UserID, err)
			}
			dm = fmt.Sprintf("Tu joueras on stream pour ton prochain set contre **%s** : je te communiquerai les codes d'accès quand ce sera ton tour.", p1.DisplayName)
			if err := e.gateway.SendDM(ctx, p2.UserID, dm); err != nil {
				log.Printf("⚠️ MP stream à %s: %v", p2.UserID, err)
			}
		}
		return fmt.Sprintf(":video_game: Je n'ai pas pu créer de channel, faites votre set en MP ou dans <#%s>.", e.channels.Tournament)
	}

	first := p1.DisplayName
	if rand.Intn(2) == 1 {
		first = p2.DisplayName
	}
	var b strings.Builder
	fmt.Fprintf(&b, ":arrow_forward: Ce channel a été créé pour le set suivant : <@%s> vs <@%s>\n", p1.UserID, p2.UserID)
	b.WriteString(":white_small_square: La liste des stages légaux est toujours disponible via la commande `!stages`.\n")
	b.WriteString(":white_small_square: En cas de lag qui rend la partie injouable, utilisez la commande `!lag` pour résoudre la situation.\n")
	fmt.Fprintf(&b, ":white_small_square: **Dès que le set est terminé**, le gagnant envoie le score dans <#%s> avec la commande `!win`.\n\n", e.channels.Scores)
	fmt.Fprintf(&b, ":game_die: **%s** est tiré au sort pour commencer le ban des stages.\n", first)
	if top8 {
		b.WriteString(":fire: C'est un set de **top 8** : vous devez le jouer en **BO5** *(best of five)*.\n")
	}
	if queued {
		b.WriteString(":tv: Vous jouerez **on stream**. Dès que ce sera votre tour, je vous communiquerai les codes d'accès.")
	}
	if _, err := e.gateway.SendMessage(ctx, channelID, b.String()); err != nil {
		log.Printf("⚠️ Briefing du set %d: %v", m.PlayOrder, err)
	}

	return fmt.Sprintf(":video_game: Allez faire votre set dans le channel <#%s> !", channelID)
}

// announceSets posts the pairing summary, split into groups so no message
// exceeds the platform limit.
func (e *MatchEngine) announceSets(ctx context.Context, sets string) {
	if len(sets) < messageLimit {
		if _, err := e.gateway.SendMessage(ctx, e.channels.Queue, sets); err != nil {
			log.Printf("⚠️ Annonce des sets: %v", err)
		}
		return
	}
	var blocks []string
	for _, b := range strings.Split(sets, "\n\n") {
		if s := strings.TrimSpace(b); s != "" {
			blocks = append(blocks, s)
		}
	}
	for len(blocks) > 0 {
		n := 10
		if len(blocks) < n {
			n = len(blocks)
		}
		if _, err := e.gateway.SendMessage(ctx, e.channels.Queue, strings.Join(blocks[:n], "\n\n")); err != nil {
			log.Printf("⚠️ Annonce des sets (lot): %v", err)
		}
		blocks = blocks[n:]
	}
}

// ReportWin validates and submits rawScore for the reporter's own open set.
// The reporter is always the winner; the score tuple is re-oriented to the
// bracket service's player1-player2 order before submission.
func (e *MatchEngine) ReportWin(ctx context.Context, reporterID, rawScore string) error {
	t, err := e.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if !t.IsUnderway() {
		return domain.ErrWrongState
	}
	participants, err := e.store.Participants(ctx)
	if err != nil {
		return err
	}
	part := participants.Get(reporterID)
	if part == nil || part.BracketID == 0 {
		return domain.ErrNotRegistered
	}

	var matches []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		matches, err = e.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open"}, ParticipantID: part.BracketID})
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch reporter's set: %w", err)
	}
	if len(matches) == 0 {
		return domain.ErrNoOpenMatch
	}
	m := matches[0]
	if !m.Started() {
		return domain.ErrMatchNotBegun
	}

	groups := scorePattern.FindStringSubmatch(rawScore)
	if groups == nil {
		return domain.ErrBadScore
	}
	won, _ := strconv.Atoi(groups[1])
	lost, _ := strconv.Atoi(groups[2])
	if won < lost {
		won, lost = lost, won
	}

	target, loserMax, minDuration := 2, 1, 5*time.Minute
	if t.IsTop8(m.Round) {
		target, loserMax, minDuration = 3, 2, dqGrace
	}
	if won != target || lost > loserMax {
		return domain.ErrBadScore
	}
	if e.now().Sub(*m.UnderwayAt) < minDuration {
		return domain.ErrMatchTooShort
	}

	scoreCSV := fmt.Sprintf("%d-%d", won, lost)
	if part.BracketID == m.Player2ID {
		scoreCSV = fmt.Sprintf("%d-%d", lost, won)
	}
	err = withRetry(ctx, func() error {
		return e.bracket.ReportScore(ctx, t.ID, m.ID, scoreCSV, part.BracketID)
	})
	if err != nil {
		return fmt.Errorf("submit score: %w", err)
	}

	if channelID, ok := e.gateway.FindMatchChannel(ctx, strconv.Itoa(m.PlayOrder)); ok {
		note := fmt.Sprintf(":bell: __Score rapporté__ : **%s** gagne **%d-%d** !\n"+
			"*En cas d'erreur, appelez un TO ! Un mauvais score intentionnel est passable de DQ et ban du tournoi.*\n"+
			"*Note : ce channel sera automatiquement supprimé 5 minutes à partir de la dernière activité.*",
			part.DisplayName, won, lost)
		if _, err := e.gateway.SendMessage(ctx, channelID, note); err != nil {
			log.Printf("⚠️ Note de score dans le channel du set %d: %v", m.PlayOrder, err)
		}
	}
	return nil
}

// Forfeit submits the minimal winning score for the caller's opponent, with
// none of the usual score validations.
func (e *MatchEngine) Forfeit(ctx context.Context, loserID string) error {
	t, err := e.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if !t.IsUnderway() {
		return domain.ErrWrongState
	}
	participants, err := e.store.Participants(ctx)
	if err != nil {
		return err
	}
	part := participants.Get(loserID)
	if part == nil || part.BracketID == 0 {
		return domain.ErrNotRegistered
	}

	var matches []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		matches, err = e.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open"}, ParticipantID: part.BracketID})
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch loser's set: %w", err)
	}
	if len(matches) == 0 {
		return domain.ErrNoOpenMatch
	}
	m := matches[0]

	// Score stays in player1-player2 order: 1-0 if player1 wins, 0-1 else.
	winnerID, scoreCSV := m.Player1ID, "1-0"
	if part.BracketID == m.Player1ID {
		winnerID, scoreCSV = m.Player2ID, "0-1"
	}
	err = withRetry(ctx, func() error {
		return e.bracket.ReportScore(ctx, t.ID, m.ID, scoreCSV, winnerID)
	})
	if err != nil {
		return fmt.Errorf("submit forfeit: %w", err)
	}
	return nil
}

// inactivityPass warns sets that stayed underway beyond the game's threshold
// and, ten minutes later, disqualifies whoever the channel history shows as
// inactive. Both steps are idempotent through the warned/timed_out sets.
func (e *MatchEngine) inactivityPass(ctx context.Context, t *entities.Tournament, snapshot []entities.Match) {
	g, err := games.Lookup(t.Game)
	if err != nil {
		return
	}
	participants, err := e.store.Participants(ctx)
	if err != nil {
		log.Printf("❌ Lecture des participants (inactivité): %v", err)
		return
	}
	streams, err := e.store.Streams(ctx)
	if err != nil {
		log.Printf("❌ Lecture des streams (inactivité): %v", err)
		return
	}

	for i := range snapshot {
		m := &snapshot[i]
		if !m.Started() || streams.IsQueued(m.PlayOrder) || streams.IsOnStream(m.PlayOrder) {
			continue
		}

		threshold := g.StaleThreshold(t.IsTop8(m.Round))
		elapsed := e.now().Sub(*m.UnderwayAt)
		if elapsed <= threshold {
			continue
		}

		channelID, ok := e.gateway.FindMatchChannel(ctx, strconv.Itoa(m.PlayOrder))
		if !ok {
			continue
		}
		p1 := participants.ByBracketID(m.Player1ID)
		p2 := participants.ByBracketID(m.Player2ID)
		if p1 == nil || p2 == nil {
			continue
		}

		if !t.HasWarned(m.PlayOrder) {
			t.MarkWarned(m.PlayOrder)
			if err := e.store.SaveTournament(ctx, t); err != nil {
				log.Printf("❌ Persistance du warning du set %d: %v", m.PlayOrder, err)
				continue
			}
			warning := fmt.Sprintf(":timer: **Ce set n'a toujours pas reçu de score !** <@%s> <@%s>\n"+
				":white_small_square: Le gagnant est prié de le poster dans <#%s> dès que possible.\n"+
				":white_small_square: Sous peu, la dernière personne ayant été active sur ce channel sera déclarée vainqueur.\n"+
				":white_small_square: La personne ayant été inactive (d'après le dernier message posté) sera **DQ sans concession** du tournoi.\n",
				p1.UserID, p2.UserID, e.channels.Scores)
			if _, err := e.gateway.SendMessage(ctx, channelID, warning); err != nil {
				log.Printf("⚠️ Avertissement d'inactivité du set %d: %v", m.PlayOrder, err)
			}
			continue
		}

		if !t.HasTimedOut(m.PlayOrder) && elapsed > threshold+dqGrace {
			t.MarkTimedOut(m.PlayOrder)
			if err := e.store.SaveTournament(ctx, t); err != nil {
				log.Printf("❌ Persistance du timeout du set %d: %v", m.PlayOrder, err)
				continue
			}
			e.resolveInactivity(ctx, t, channelID, participants, p1, p2)
		}
	}
}

// resolveInactivity infers last activity from the channel history and acts:
// neither player posted, both get disqualified; one posted, the silent one
// goes; both posted more than the grace apart, the less recent one goes;
// otherwise a human has to decide.
func (e *MatchEngine) resolveInactivity(ctx context.Context, t *entities.Tournament, channelID string, participants *entities.Participants, p1, p2 *entities.Participant) {
	var active, inactive *output.Message
	err := e.gateway.History(ctx, channelID, func(msg output.Message) bool {
		if msg.AuthorIsBot || msg.AuthorIsOrganizer {
			return true
		}
		if active == nil {
			m := msg
			active = &m
			return true
		}
		if msg.AuthorID != active.AuthorID {
			m := msg
			inactive = &m
			return false
		}
		return true
	})
	if err != nil {
		log.Printf("❌ Lecture de l'historique du channel %s: %v", channelID, err)
		return
	}

	switch {
	case active == nil:
		// No player was ever active: both are out.
		e.say(ctx, channelID, fmt.Sprintf("<@&%s> **DQ automatique des __2 joueurs__ pour inactivité : <@%s> & <@%s>**",
			e.roles.Organizer, p1.UserID, p2.UserID))
		e.disqualify(ctx, t, p1)
		e.disqualify(ctx, t, p2)

	case inactive == nil:
		silent := p1
		if active.AuthorID == p1.UserID {
			silent = p2
		}
		e.say(ctx, channelID, fmt.Sprintf("<@&%s> **DQ automatique de <@%s> pour inactivité.**", e.roles.Organizer, silent.UserID))
		e.disqualify(ctx, t, silent)

	case active.CreatedAt.Sub(inactive.CreatedAt) > dqGrace:
		loser := participants.Get(inactive.AuthorID)
		if loser == nil {
			return
		}
		e.say(ctx, channelID, fmt.Sprintf("<@&%s> **Une DQ automatique a été executée pour inactivité :**\n- <@%s> passe au round suivant.\n- <@%s> est DQ du tournoi.",
			e.roles.Organizer, active.AuthorID, inactive.AuthorID))
		e.disqualify(ctx, t, loser)

	default:
		e.say(ctx, channelID, fmt.Sprintf("<@&%s> **Durée anormalement longue détectée** pour ce set, une décision d'un TO doit être prise.", e.roles.Organizer))
	}
}

// disqualify removes the player from the bracket, best effort.
func (e *MatchEngine) disqualify(ctx context.Context, t *entities.Tournament, part *entities.Participant) {
	if part.BracketID == 0 {
		return
	}
	err := withRetry(ctx, func() error {
		return e.bracket.DestroyParticipant(ctx, t.ID, part.BracketID)
	})
	if err != nil {
		log.Printf("❌ DQ automatique de %s: %v", part.UserID, err)
	}
}

// cleanupPass deletes channels of sets that are no longer open once their
// last message is old enough.
func (e *MatchEngine) cleanupPass(ctx context.Context, snapshot []entities.Match) {
	open := map[string]bool{}
	for _, m := range snapshot {
		open[strconv.Itoa(m.PlayOrder)] = true
	}

	chans, err := e.gateway.MatchChannels(ctx)
	if err != nil {
		log.Printf("❌ Listing des channels de set: %v", err)
		return
	}
	for _, ch := range chans {
		if open[ch.Name] {
			continue
		}
		last, err := e.gateway.LastMessage(ctx, ch.ID)
		if err != nil {
			continue
		}
		if e.now().Sub(last.CreatedAt) > channelTTL {
			if err := e.gateway.DeleteChannel(ctx, ch.ID); err != nil {
				log.Printf("⚠️ Suppression du channel %s: %v", ch.Name, err)
			}
		}
	}
}

func (e *MatchEngine) say(ctx context.Context, channelID, content string) {
	if _, err := e.gateway.SendMessage(ctx, channelID, content); err != nil {
		log.Printf("⚠️ Message dans %s: %v", channelID, err)
	}
}

// roundLabel renders a human bracket round name.
func roundLabel(round int) string {
	if round > 0 {
		return fmt.Sprintf("Winner round %d", round)
	}
	return fmt.Sprintf("Looser round %d", -round)
}
