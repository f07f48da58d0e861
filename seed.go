package roleadmin

// Names of the built-in roles.
const (
	RoleAdministrator       = "Administrator"
	RoleManager             = "Manager"
	RoleSalesRepresentative = "Sales Representative"
	RoleTechnician          = "Technician"
	RoleHRSpecialist        = "HR Specialist"
	RoleOfficeStaff         = "Office Staff"
	RoleEngineer            = "Engineer"
	RoleLabTechnician       = "Lab Technician"
	RoleScavengerOperator   = "Scavenger Operator"
	RoleViewer              = "Viewer"
)

// DefaultSystemRoles returns the built-in roles, parents before children.
func DefaultSystemRoles() []Role {
	return []Role{
		{
			Name:        RoleViewer,
			Portals:     []Portal{PortalOffice},
			Permissions: Perms("reports.view:own", "documents.view:own"),
		},
		{
			Name:       RoleTechnician,
			ParentRole: RoleViewer,
			Portals:    []Portal{PortalNeta},
			Permissions: Perms(
				"jobs.view:own", "jobs.edit:own",
				"documents.create:own", "reports.create:own",
			),
		},
		{
			Name:        RoleLabTechnician,
			ParentRole:  RoleTechnician,
			Portals:     []Portal{PortalLab},
			Permissions: Perms("jobs.view:division", "reports.view:division"),
		},
		{
			Name:       RoleEngineer,
			ParentRole: RoleTechnician,
			Portals:    []Portal{PortalEngineering},
			Permissions: Perms(
				"jobs.view:division", "jobs.edit:division",
				"documents.edit:division", "reports.view:division",
			),
			Abilities: Abilities{CanManageContent: true},
		},
		{
			Name:        RoleScavengerOperator,
			ParentRole:  RoleViewer,
			Portals:     []Portal{PortalScavenger},
			Permissions: Perms("jobs.view:own", "jobs.create:own"),
		},
		{
			Name:       RoleSalesRepresentative,
			ParentRole: RoleViewer,
			Portals:    []Portal{PortalSales},
			Permissions: Perms(
				"customers.view:division", "customers.create:own", "customers.edit:own",
				"opportunities.view:own", "opportunities.create:own", "opportunities.edit:own",
			),
		},
		{
			Name:       RoleOfficeStaff,
			ParentRole: RoleViewer,
			Portals:    []Portal{PortalOffice},
			Permissions: Perms(
				"customers.view:division", "documents.create:division",
				"documents.edit:division", "jobs.view:division",
			),
		},
		{
			Name:       RoleHRSpecialist,
			ParentRole: RoleViewer,
			Portals:    []Portal{PortalHR},
			Permissions: Perms(
				"users.view:all", "users.create:all", "users.edit:all",
				"documents.view:division", "reports.view:division",
			),
			Abilities: Abilities{CanManageUsers: true},
		},
		{
			Name:       RoleManager,
			ParentRole: RoleViewer,
			Portals:    []Portal{PortalSales, PortalNeta, PortalOffice, PortalEngineering},
			Permissions: Perms(
				"jobs.view:division", "jobs.edit:division", "jobs.approve:division", "jobs.assign:division",
				"opportunities.view:division", "opportunities.approve:division",
				"customers.view:division", "reports.view:division", "reports.approve:division",
				"users.view:division",
			),
			Abilities: Abilities{CanManageContent: true, CanViewAllData: true},
		},
		{
			Name:        RoleAdministrator,
			Portals:     append([]Portal(nil), Portals...),
			Permissions: allPermissions(ScopeAll),
			Abilities:   Abilities{CanManageUsers: true, CanManageContent: true, CanViewAllData: true},
		},
	}
}

// allPermissions grants every action on every resource at scope.
func allPermissions(scope Scope) []Permission {
	out := make([]Permission, 0, len(Resources)*len(Actions))
	for _, r := range Resources {
		for _, a := range Actions {
			out = append(out, Permission{Resource: r, Action: a, Scope: scope})
		}
	}
	return out
}
