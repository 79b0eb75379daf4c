package application

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/domain/games"
	"atos/internal/ports/input"
	"atos/internal/ports/output"
	"atos/pkg/tz"
)

var _ input.TournamentUseCase = (*TournamentService)(nil)

var bracketLinkPattern = regexp.MustCompile(`^(https?://)?(challonge\.com)/.+$`)

// Stable job IDs: re-scheduling one replaces the previous run.
const (
	jobCheckInOpen     = "checkin-open"
	jobCheckInClose    = "checkin-close"
	jobCheckInReminder = "checkin-reminder"
	jobMatchPoll       = "match-poll"
)

const (
	checkInLead    = time.Hour              // check-in opens 1h before start
	checkInMargin  = 10 * time.Minute       // and closes 10min before start
	pollInterval   = time.Minute            // match-poll cadence
	remindInterval = 10 * time.Minute       // checkin-reminder cadence
)

// TournamentService is the lifecycle state machine: none → pending →
// underway → none. It owns job scheduling and the top-level announcements.
type TournamentService struct {
	store        output.StateStore
	bracket      output.BracketService
	gateway      output.ChatGateway
	scheduler    output.Scheduler
	registration *RegistrationService
	engine       *MatchEngine
	channels     Channels
	roles        Roles
	bulkMode     bool
	now          func() time.Time
}

func NewTournamentService(
	store output.StateStore,
	bracket output.BracketService,
	gateway output.ChatGateway,
	scheduler output.Scheduler,
	registration *RegistrationService,
	engine *MatchEngine,
	channels Channels,
	roles Roles,
	bulkMode bool,
) *TournamentService {
	return &TournamentService{
		store:        store,
		bracket:      bracket,
		gateway:      gateway,
		scheduler:    scheduler,
		registration: registration,
		engine:       engine,
		channels:     channels,
		roles:        roles,
		bulkMode:     bulkMode,
		now:          time.Now,
	}
}

// Setup initializes a pending tournament from a challonge.com link: fetches
// the bracket, validates game and start time, persists the fresh aggregates,
// posts the registration announcement and schedules the check-in jobs.
func (s *TournamentService) Setup(ctx context.Context, ref string) error {
	existing, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrWrongState
	}

	if !bracketLinkPattern.MatchString(ref) {
		return domain.ErrBadLink
	}
	slug := ref
	slug = strings.TrimPrefix(slug, "https://")
	slug = strings.TrimPrefix(slug, "http://")
	slug = strings.TrimPrefix(slug, "challonge.com/")

	var info *entities.BracketInfo
	err = withRetry(ctx, func() error {
		var err error
		info, err = s.bracket.Show(ctx, slug)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch bracket %q: %w", slug, err)
	}

	if !s.now().Before(info.StartAt) {
		return domain.ErrStartInPast
	}
	g, err := games.Lookup(info.GameName)
	if err != nil {
		return err
	}

	t := &entities.Tournament{
		ID:           info.ID,
		Name:         info.Name,
		Game:         g.Name,
		URL:          info.URL,
		Cap:          info.SignupCap,
		Status:       entities.StatusPending,
		StartAt:      info.StartAt,
		CheckInStart: info.StartAt.Add(-checkInLead),
		CheckInEnd:   info.StartAt.Add(-checkInMargin),
		Warned:       []int{},
		TimedOut:     []int{},
		BulkMode:     s.bulkMode,
	}

	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if err := s.store.SaveTournament(ctx, t); err != nil {
		return err
	}

	if err := s.announceRegistration(ctx, t); err != nil {
		return err
	}

	s.scheduler.RunAt(jobCheckInOpen, t.CheckInStart, s.openCheckInJob)
	s.scheduler.RunAt(jobCheckInClose, t.CheckInEnd, s.closeCheckInJob)
	return nil
}

// announceRegistration wipes the sign-up channel and posts the reaction
// announcement members register on.
func (s *TournamentService) announceRegistration(ctx context.Context, t *entities.Tournament) error {
	if err := s.gateway.PurgeChannel(ctx, s.channels.Signup); err != nil {
		log.Printf("⚠️ Purge du channel d'inscription: %v", err)
	}

	bracketLine := t.URL
	if t.BulkMode {
		bracketLine = "rendu disponible peu de temps avant le début du tournoi"
	}
	annonce := fmt.Sprintf(
		":trophy: **%s** - *%s*\n"+
			":white_small_square: __Date__ : %s\n"+
			":white_small_square: __Check-in__ : de %s à %s\n"+
			":white_small_square: __Limite__ : 0/%d joueurs *(mise à jour en temps réel)*\n"+
			":white_small_square: __Bracket__ : %s\n"+
			":white_small_square: __Format__ : singles, double élimination\n\n"+
			"Merci de vous inscrire en ajoutant une réaction ✅ à ce message. Vous pouvez vous désinscrire en la retirant à tout moment.\n"+
			"*Notez que votre pseudonyme Discord au moment de l'inscription sera celui utilisé dans le bracket.*",
		t.Name, t.Game,
		tz.DateTime(t.StartAt),
		tz.Clock(t.CheckInStart), tz.Clock(t.CheckInEnd),
		t.Cap, bracketLine)

	msgID, err := s.gateway.SendMessage(ctx, s.channels.Signup, annonce)
	if err != nil {
		return fmt.Errorf("post registration announcement: %w", err)
	}
	t.AnnounceID = msgID
	if err := s.store.SaveTournament(ctx, t); err != nil {
		return err
	}
	if err := s.gateway.AddReaction(ctx, s.channels.Signup, msgID, signupEmoji); err != nil {
		log.Printf("⚠️ Réaction d'amorce sur l'annonce: %v", err)
	}

	if _, err := s.gateway.SendMessage(ctx, s.channels.Announce,
		fmt.Sprintf(":trophy: Inscriptions pour le **%s** ouvertes dans <#%s> !\n:calendar_spiral: Ce tournoi aura lieu le **%s**.",
			t.Name, s.channels.Signup, tz.DateTime(t.StartAt))); err != nil {
		log.Printf("⚠️ Annonce d'ouverture des inscriptions: %v", err)
	}

	// Leftovers of a previous tournament.
	if err := s.gateway.PurgeMatchCategories(ctx); err != nil {
		log.Printf("⚠️ Purge des catégories de bracket: %v", err)
	}
	return nil
}

// Start moves a pending tournament underway. Only valid once check-in is
// over; computes the top-8 thresholds and starts the recurring poll.
func (s *TournamentService) Start(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if !t.IsPending() {
		return domain.ErrWrongState
	}
	if !s.now().After(t.CheckInEnd) {
		return domain.ErrTooEarly
	}

	if err := withRetry(ctx, func() error { return s.bracket.Start(ctx, t.ID) }); err != nil {
		return fmt.Errorf("start bracket: %w", err)
	}

	// Thresholds derive from the rounds present once the bracket is drawn:
	// top 8 begins two rounds before winner finals and three rounds into
	// the loser tail.
	var matches []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		matches, err = s.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open", "pending"}})
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch rounds: %w", err)
	}
	winner, loser := Top8Thresholds(matches)
	t.WinnerRoundTop8 = winner
	t.LoserRoundTop8 = loser
	t.Status = entities.StatusUnderway
	if err := s.store.SaveTournament(ctx, t); err != nil {
		return err
	}

	s.announceStart(ctx, t)
	s.scheduler.RunEvery(jobMatchPoll, pollInterval, s.pollJob)
	return nil
}

// Top8Thresholds computes the first top-8 rounds from the open/pending round
// set of a double-elimination bracket.
func Top8Thresholds(matches []entities.Match) (winner, loser int) {
	if len(matches) == 0 {
		return 0, 0
	}
	max, min := matches[0].Round, matches[0].Round
	for _, m := range matches[1:] {
		if m.Round > max {
			max = m.Round
		}
		if m.Round < min {
			min = m.Round
		}
	}
	return max - 2, min + 3
}

func (s *TournamentService) announceStart(ctx context.Context, t *entities.Tournament) {
	if _, err := s.gateway.SendMessage(ctx, s.channels.Announce,
		fmt.Sprintf(":trophy: Le tournoi **%s** est officiellement lancé ! Voici le bracket : %s\n"+
			":white_small_square: Vous pouvez y accéder à tout moment avec la commande `!bracket`.\n"+
			":white_small_square: Vous pouvez consulter les liens de stream avec la commande `!stream`.",
			t.Name, t.URL)); err != nil {
		log.Printf("⚠️ Annonce de lancement: %v", err)
	}

	if _, err := s.gateway.SendMessage(ctx, s.channels.Scores,
		fmt.Sprintf(":information_source: La prise en charge des scores pour le tournoi **%s** est automatisée :\n"+
			":white_small_square: Seul **le gagnant du set** envoie le score de son set, précédé par la **commande** `!win`.\n"+
			":white_small_square: Le message du score doit contenir le **format suivant** : `!win 2-0, 3-2, 3-1, ...`.\n"+
			":white_small_square: Un mauvais score intentionnel, perturbant le déroulement du tournoi, est **passable de DQ et ban**.\n"+
			":white_small_square: Consultez le bracket afin de **vérifier** les informations : %s\n"+
			":white_small_square: En cas de mauvais score : contactez un TO pour une correction manuelle.",
			t.Name, t.URL)); err != nil {
		log.Printf("⚠️ Consignes de score: %v", err)
	}

	if _, err := s.gateway.SendMessage(ctx, s.channels.Queue,
		":information_source: Le lancement des sets est automatisé. **Veuillez suivre les consignes de ce channel**, "+
			"que ce soit par le bot ou les TOs. Tout passage on stream sera notifié à l'avance."); err != nil {
		log.Printf("⚠️ Consignes de queue: %v", err)
	}

	if _, err := s.gateway.SendMessage(ctx, s.channels.Tournament,
		fmt.Sprintf(":alarm_clock: <@&%s> On arrête le freeplay ! Le tournoi est sur le point de commencer. Veuillez lire les consignes :\n"+
			":white_small_square: Vos sets sont annoncés dès que disponibles dans <#%s> : **ne lancez rien sans consulter ce channel**.\n"+
			":white_small_square: Le gagnant d'un set doit rapporter le score **dès que possible** dans <#%s> avec la commande `!win`.\n"+
			":white_small_square: Si vous le souhaitez vraiment, vous pouvez toujours DQ du tournoi avec la commande `!dq` à tout moment.\n\n"+
			":fire: Le **top 8** commencera, d'après le bracket :\n- En **winner round %d** (semi-finales)\n- En **looser round %d**\n\n"+
			"*L'équipe de TO et moi-même vous souhaitons un excellent tournoi.*",
			s.roles.Challenger, s.channels.Queue, s.channels.Scores,
			t.WinnerRoundTop8, -t.LoserRoundTop8)); err != nil {
		log.Printf("⚠️ Annonce de début de tournoi: %v", err)
	}
}

// End finalizes the bracket, announces the results, strips roles and clears
// every aggregate, returning the lifecycle to none.
func (s *TournamentService) End(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if !t.IsUnderway() {
		return domain.ErrWrongState
	}
	if !s.now().After(t.StartAt) {
		return domain.ErrTooEarly
	}

	if err := withRetry(ctx, func() error { return s.bracket.Finalize(ctx, t.ID) }); err != nil {
		return fmt.Errorf("finalize bracket: %w", err)
	}

	s.scheduler.Cancel(jobMatchPoll)

	s.announceResults(ctx, t)

	if _, err := s.gateway.SendMessage(ctx, s.channels.Announce,
		fmt.Sprintf(":trophy: Le tournoi **%s** est terminé, merci à toutes et à tous d'avoir participé ! J'espère vous revoir bientôt.", t.Name)); err != nil {
		log.Printf("⚠️ Annonce de fin: %v", err)
	}

	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	for userID := range participants.ByUser {
		if err := s.gateway.RevokeRole(ctx, userID, s.roles.Challenger); err != nil {
			log.Printf("⚠️ Retrait du rôle challenger (%s): %v", userID, err)
		}
	}

	return s.store.Reset(ctx)
}

var resultEndings = []string{
	"Bien joué à tous ! Quant aux autres : ne perdez pas espoir, ce sera votre tour un jour...",
	"Merci à tous d'avoir participé, on se remet ça très bientôt ! Prenez soin de vous.",
	"Félicitations à eux. N'oubliez pas que la clé est la persévérance ! Croyez toujours en vous.",
	"Ce fut un plaisir en tant que bot d'aider à la gestion de ce tournoi et d'assister à vos merveilleux sets.",
}

// announceResults posts the final placings. Small brackets only get the
// link; from eight entrants up the full top 7 is rendered.
func (s *TournamentService) announceResults(ctx context.Context, t *entities.Tournament) {
	var standings []entities.Standing
	err := withRetry(ctx, func() error {
		var err error
		standings, err = s.bracket.Standings(ctx, t.ID)
		return err
	})
	if err != nil {
		log.Printf("❌ Récupération du classement final: %v", err)
		return
	}

	if len(standings) < 8 {
		if _, err := s.gateway.SendMessage(ctx, s.channels.Results,
			fmt.Sprintf(":trophy: Résultats du **%s** : %s", t.Name, t.URL)); err != nil {
			log.Printf("⚠️ Annonce des résultats: %v", err)
		}
		return
	}

	sort.Slice(standings, func(i, j int) bool { return standings[i].FinalRank < standings[j].FinalRank })
	var fifth, seventh []string
	for _, st := range standings {
		switch st.FinalRank {
		case 5:
			fifth = append(fifth, st.DisplayName)
		case 7:
			seventh = append(seventh, st.DisplayName)
		}
	}
	for len(fifth) < 2 {
		fifth = append(fifth, "(?)")
	}
	for len(seventh) < 2 {
		seventh = append(seventh, "(?)")
	}

	classement := fmt.Sprintf(":trophy: **__Résultats du tournoi %s__**\n\n"+
		":trophy: **1er** : **%s**\n"+
		":second_place: **2e** : %s\n"+
		":third_place: **3e** : %s\n"+
		":medal: **4e** : %s\n"+
		":reminder_ribbon: **5e** : %s / %s\n"+
		":reminder_ribbon: **7e** : %s / %s\n\n"+
		":bar_chart: %d entrants\n"+
		":video_game: %s\n"+
		":link: **Bracket :** %s\n\n%s",
		t.Name,
		standings[0].DisplayName, standings[1].DisplayName, standings[2].DisplayName, standings[3].DisplayName,
		fifth[0], fifth[1], seventh[0], seventh[1],
		len(standings), t.Game, t.URL,
		resultEndings[rand.Intn(len(resultEndings))])

	if _, err := s.gateway.SendMessage(ctx, s.channels.Results, classement); err != nil {
		log.Printf("⚠️ Annonce des résultats: %v", err)
	}
}

// Reload re-derives every scheduled job from the persisted tournament after
// a restart, then reconciles registrations against the reactions that
// happened while the process was down.
func (s *TournamentService) Reload(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		log.Println("🤖 Aucun tournoi à recharger.")
		return nil
	}

	switch t.Status {
	case entities.StatusUnderway:
		s.scheduler.RunEvery(jobMatchPoll, pollInterval, s.pollJob)
	case entities.StatusPending:
		s.scheduler.RunAt(jobCheckInOpen, t.CheckInStart, s.openCheckInJob)
		s.scheduler.RunAt(jobCheckInClose, t.CheckInEnd, s.closeCheckInJob)
		if s.now().After(t.CheckInStart) && s.now().Before(t.CheckInEnd) {
			s.scheduler.RunEvery(jobCheckInReminder, remindInterval, s.remindCheckInJob)
		}
	}
	log.Println("✅ Tâches planifiées du tournoi rechargées.")

	if s.now().Before(t.CheckInEnd) && t.AnnounceID != "" {
		if err := s.replayRegistrations(ctx, t); err != nil {
			return err
		}
		log.Println("✅ Inscriptions manquées rattrapées.")
	}
	return nil
}

// replayRegistrations diffs the current reactors of the announcement against
// the stored participants: reactors not registered join, registered members
// that removed their reaction leave.
func (s *TournamentService) replayRegistrations(ctx context.Context, t *entities.Tournament) error {
	reactors, err := s.gateway.Reactors(ctx, s.channels.Signup, t.AnnounceID, signupEmoji)
	if err != nil {
		return fmt.Errorf("fetch announcement reactors: %w", err)
	}

	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}

	reacted := map[string]bool{}
	for _, userID := range reactors {
		reacted[userID] = true
		if participants.Get(userID) != nil {
			continue
		}
		name, err := s.gateway.MemberDisplayName(ctx, userID)
		if err != nil {
			log.Printf("⚠️ Résolution du membre %s: %v", userID, err)
			continue
		}
		if err := s.registration.Join(ctx, entities.Member{ID: userID, DisplayName: name}); err != nil {
			log.Printf("⚠️ Rattrapage d'inscription de %s: %v", userID, err)
		}
	}

	for userID := range participants.ByUser {
		if reacted[userID] {
			continue
		}
		if err := s.registration.Leave(ctx, userID); err != nil {
			log.Printf("⚠️ Rattrapage de désinscription de %s: %v", userID, err)
		}
	}
	return nil
}

// BracketURL returns the public bracket link.
func (s *TournamentService) BracketURL(ctx context.Context) (string, error) {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", domain.ErrNoTournament
	}
	return fmt.Sprintf(":trophy: **%s** : %s", t.Name, t.URL), nil
}

// Stages renders the current game's legal stage lists.
func (s *TournamentService) Stages(ctx context.Context) (string, error) {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", domain.ErrNoTournament
	}
	g, err := games.Lookup(t.Game)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":map: **Stages légaux pour %s :**\n:white_small_square: __Starters__ :\n", g.Name)
	for _, stage := range g.Starters {
		fmt.Fprintf(&b, "- %s\n", stage)
	}
	if len(g.Counterpicks) > 0 {
		b.WriteString(":white_small_square: __Counterpicks__ :\n")
		for _, stage := range g.Counterpicks {
			fmt.Fprintf(&b, "- %s\n", stage)
		}
	}
	return b.String(), nil
}

// Job bodies. Each one builds a fresh context: jobs outlive any command.

func (s *TournamentService) openCheckInJob() {
	ctx := context.Background()
	if err := s.registration.OpenCheckIn(ctx); err != nil {
		log.Printf("❌ Ouverture du check-in: %v", err)
		return
	}
	s.scheduler.RunEvery(jobCheckInReminder, remindInterval, s.remindCheckInJob)
}

func (s *TournamentService) remindCheckInJob() {
	if err := s.registration.RemindCheckIn(context.Background()); err != nil {
		log.Printf("❌ Rappel de check-in: %v", err)
	}
}

func (s *TournamentService) closeCheckInJob() {
	s.scheduler.Cancel(jobCheckInReminder)
	if err := s.registration.CloseCheckIn(context.Background()); err != nil {
		log.Printf("❌ Fermeture du check-in: %v", err)
	}
}

func (s *TournamentService) pollJob() {
	s.engine.Poll(context.Background())
}
