package sources

var districts = []string{
	"aveiro",
	"beja",
	"braga",
	"braganca",
	"castelo-branco",
	"coimbra",
	"evora",
	"faro",
	"guarda",
	"leiria",
	"lisboa",
	"portalegre",
	"porto",
	"santarem",
	"setubal",
	"viana-do-castelo",
	"vila-real",
	"viseu",
	"madeira",
	"acores",
}

// Districts returns the mainland districts followed by the islands, in crawl order.
func Districts() []string {
	return append([]string(nil), districts...)
}
