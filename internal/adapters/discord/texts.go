package discord

// User-facing explainers and help blocks, posted verbatim.

const helpText = "**Commandes générales :**\n" +
	"`!bracket` » lien du bracket en cours\n" +
	"`!stages` » stages autorisés (starters et counterpicks)\n" +
	"`!stream` » lien du ou des streams en cours\n" +
	"`!flip` » tirage au sort pour l'ordre des bans\n" +
	"`!buffer <ping>` » buffer minimum suggéré pour Dolphin Netplay\n" +
	"`!desync` » guide de résolution des desyncs\n" +
	"`!help` » ce message"

const challengerHelpText = "**Commandes challenger :**\n" +
	"`!win <score>` » rapporter la victoire de ton set (ex : `!win 2-0`)\n" +
	"`!forfeit` » abandonner ton set en cours\n" +
	"`!dq` » te désinscrire du tournoi en cours\n" +
	"`!lag` » que faire en cas de lag pendant un set"

const adminHelpText = "**Commandes TO :**\n" +
	"`!setup <lien>` » initialiser le tournoi depuis un bracket\n" +
	"`!start` » lancer le tournoi une fois le check-in terminé\n" +
	"`!end` » clôturer le tournoi et annoncer les résultats\n" +
	"`!add @joueur` » inscrire un joueur manuellement\n" +
	"`!rm @joueur` » désinscrire un joueur"

const streamerHelpText = "**Commandes stream :**\n" +
	"`!initstream <lien twitch>` » déclarer ta chaîne\n" +
	"`!setstream <codes>` » définir les codes d'accès à l'arène\n" +
	"`!addstream <sets>` » ajouter des sets à ta file de stream\n" +
	"`!rmstream <sets>` » retirer des sets de ta file\n" +
	"`!mystream` » récapitulatif de ta session\n" +
	"`!stopstream` » terminer ta session de stream"

const lagText = "**En cas de lag :**\n" +
	"1. Fermez toute application consommant de la bande passante (streaming, téléchargements).\n" +
	"2. Privilégiez une connexion filaire à l'éthernet plutôt que le Wi-Fi.\n" +
	"3. Augmentez le buffer du host (`!buffer <ping>` pour une suggestion).\n" +
	"Si le lag persiste malgré tout, appelez un TO dans le channel de votre set."

const lagTextProjectPlus = "\n\n**Spécifique Project+ :**\n" +
	"Vérifiez que les deux joueurs utilisent la même version du build et " +
	"désactivez les codes Gecko non standard avant de relancer le set."

const desyncText = "**Résoudre un desync Dolphin :**\n" +
	"1. Vérifiez que les deux joueurs ont exactement la même ISO (même hash MD5).\n" +
	"2. Videz le dossier `User/GC` de chaque Dolphin (cartes mémoire corrompues).\n" +
	"3. Désactivez tout cheat ou code Gecko non requis par le tournoi.\n" +
	"4. Relancez Dolphin des deux côtés avant de recréer l'arène.\n" +
	"Si le desync persiste, appelez un TO dans le channel de votre set."
