package orders

import "github.com/avellano/avellano-bot/internal/models"

// coordinators maps each responsable role to the sales contact who handles its orders.
var coordinators = map[models.Responsable]models.Coordinator{
	models.ResponsableSalesDirect: {CoordinatorName: "Director Comercial", CoordinatorPhone: "573108540251"},
	models.ResponsableMassMarket:  {CoordinatorName: "Coordinador de Masivos", CoordinatorPhone: "573232747647"},
	models.ResponsableHoreca:      {CoordinatorName: "Ejecutivo Horecas", CoordinatorPhone: "573138479027"},
	models.ResponsableWholesale:   {CoordinatorName: "Coordinador Mayoristas", CoordinatorPhone: "573214057410"},
}

// CoordinatorFor returns the coordinator for r, falling back to mass market.
func CoordinatorFor(r models.Responsable) models.Coordinator {
	if c, ok := coordinators[r]; ok {
		return c
	}
	return coordinators[models.ResponsableMassMarket]
}

// CoordinatorForCustomer resolves the coordinator from the customer's
// responsable, or from its type when no responsable was recorded.
func CoordinatorForCustomer(c *models.Customer) models.Coordinator {
	r := c.Responsable
	if !r.IsValid() {
		r = models.ResponsableFor(c.Type)
	}
	return CoordinatorFor(r)
}
