package flow

import (
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
)

// Flow names.
const (
	FlowWelcome        = "welcome"
	FlowOrder          = "pedido"
	FlowHome           = "hogar"
	FlowPlaceOrder     = "hacer_pedido"
	FlowBackToMenu     = "volver_menu"
	FlowBusiness       = "negocios"
	FlowStores         = "tiendas"
	FlowGrills         = "asaderos"
	FlowPremium        = "restaurante_premium"
	FlowStandard       = "restaurantes_estandar"
	FlowWholesale      = "mayoristas"
	FlowSendInfo       = "enviar_info_negocio"
	FlowCatalog        = "ver_catalogo"
	FlowAdvisor        = "contactar_asesor"
	FlowFindUs         = "encuentranos"
	FlowLocation       = "ver_ubicacion"
	FlowBranches       = "ver_sucursales"
	FlowRecipes        = "recetas"
	FlowChickenRecipes = "recetas_pollo"
	FlowMeatRecipes    = "recetas_carnes"
	FlowSupport        = "atencion"
	FlowGeneralInfo    = "info_general"
	FlowMyData         = "mis_datos"
	FlowPolicies       = "politicas"
	FlowShowData       = "consultar_datos"
	FlowRevoke         = "revocar"
	FlowFinish         = "finalizar"
	FlowCancel         = "cancelar"
	FlowOrderStatus    = "consultar_pedido"
)

// defaultFlows lists the Avellano flows in matching priority.
func (r *Router) defaultFlows() []Flow {
	return []Flow{
		{
			Name:           FlowWelcome,
			Triggers:       []string{"hola", "menu", "menú"},
			OnFirstContact: true,
			PreConsent:     true,
			Guard:          session.KeyAwaitingPolicy,
			Action:         r.welcome,
			Continue:       r.welcomeReply,
		},
		{Name: FlowOrder, Triggers: []string{"🛒 pedido", "pedido", "hacer un pedido"}, Action: r.askCustomerKind},
		{Name: FlowHome, Triggers: []string{"🏠 hogar", "hogar"}, Action: r.registerHome},
		{
			Name:     FlowPlaceOrder,
			Triggers: []string{"🛒 hacer pedido", "hacer pedido"},
			Guard:    session.KeyAwaitingOrderItems,
			Action:   r.startOrder,
			Continue: r.captureOrderItems,
		},
		{Name: FlowBackToMenu, Triggers: []string{"🔙 volver menú", "volver menú", "volver menu", "menu principal"}, Action: r.showMenu},
		{Name: FlowBusiness, Triggers: []string{"🏢 negocios", "negocios"}, Action: r.listBusinessKinds},
		{Name: FlowStores, Triggers: []string{"tiendas", "tienda"}, Action: r.businessKind(models.CustomerStore)},
		{Name: FlowGrills, Triggers: []string{"asaderos", "asadero"}, Action: r.businessKind(models.CustomerGrillHouse)},
		{Name: FlowPremium, Triggers: []string{"restaurante premium"}, Action: r.businessKind(models.CustomerPremiumRestaurant)},
		{Name: FlowStandard, Triggers: []string{"restaurante estándar", "restaurante estandar"}, Action: r.businessKind(models.CustomerStandardRestaurant)},
		{Name: FlowWholesale, Triggers: []string{"mayoristas", "mayorista"}, Action: r.businessKind(models.CustomerWholesaler)},
		{
			Name:     FlowSendInfo,
			Triggers: []string{"📝 enviar información", "enviar información", "enviar informacion"},
			Guard:    session.KeyAwaitingBusinessData,
			Action:   r.askBusinessData,
			Continue: r.captureBusinessData,
		},
		{Name: FlowCatalog, Triggers: []string{"📋 ver catálogo", "ver catálogo", "ver catalogo", "catálogo", "catalogo"}, Action: r.showCatalog},
		{Name: FlowAdvisor, Triggers: []string{"contactar asesor", "hablar con asesor"}, Action: r.contactAdvisor},
		{Name: FlowFindUs, Triggers: []string{"📍 encuéntranos", "encuéntranos", "encuentranos", "ubicación"}, Action: r.reply(findUs)},
		{Name: FlowLocation, Triggers: []string{"📍 ver ubicación", "ver ubicación", "ver ubicacion"}, Action: r.reply(locationText)},
		{Name: FlowBranches, Triggers: []string{"🏪 ver sucursales", "ver sucursales", "sucursales"}, Action: r.reply(branchesText)},
		{Name: FlowRecipes, Triggers: []string{"📖 recetas", "recetas"}, Action: r.reply(recipesMenu)},
		{Name: FlowChickenRecipes, Triggers: []string{"🐔 recetas pollo", "recetas pollo", "receta pollo"}, Action: r.recipe("pollo")},
		{Name: FlowMeatRecipes, Triggers: []string{"🥩 recetas carnes", "recetas carnes", "receta carnes"}, Action: r.recipe("carnes")},
		{Name: FlowSupport, Triggers: []string{"📞 atención", "atención", "atencion"}, Action: r.reply(supportMenu...)},
		{Name: FlowGeneralInfo, Triggers: []string{"info general", "información general", "informacion general"}, Action: r.reply(generalInfo)},
		{Name: FlowMyData, Triggers: []string{"🔒 mis datos", "mis datos", "privacidad"}, Action: r.reply(myDataMenu...)},
		{
			Name:       FlowPolicies,
			Triggers:   []string{"📄 ver política", "ver política", "ver politica", "política", "politica", "políticas", "politicas"},
			PreConsent: true,
			Guard:      session.KeyAwaitingPolicy,
			Action:     r.showPolicy,
			Continue:   r.policyReply,
		},
		{Name: FlowShowData, Triggers: []string{"📋 consultar datos", "consultar datos", "ver mis datos"}, Action: r.showStoredData},
		{
			Name:     FlowRevoke,
			Triggers: []string{"❌ revocar", "revocar", "eliminar datos", "borrar datos"},
			Guard:    session.KeyAwaitingRevocation,
			Action:   r.askRevocation,
			Continue: r.confirmRevocation,
		},
		{Name: FlowFinish, Triggers: []string{"✅ finalizar", "finalizar"}, Action: r.finishOrder},
		{Name: FlowCancel, Triggers: []string{"❌ cancelar", "cancelar"}, Action: r.cancelDraft},
		{Name: FlowOrderStatus, Triggers: []string{"consultar", "consultar pedido", "estado pedido"}, Action: r.orderStatus},
	}
}
